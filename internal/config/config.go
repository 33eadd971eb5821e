package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Auth        AuthConfig        `yaml:"auth"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Log         LogConfig         `yaml:"log"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           string   `yaml:"port"`
	Mode           string   `yaml:"mode"` // debug, release, test
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type StorageConfig struct {
	DataDir   string `yaml:"data_dir"`
	UploadDir string `yaml:"upload_dir"`
	// URL prefix under which UploadDir is served.
	PublicPrefix string `yaml:"public_prefix"`
	MaxUploadMB  int64  `yaml:"max_upload_mb"`
	// Renumber project IDs to 1..N after every deletion.
	CompactIDs       bool `yaml:"compact_ids"`
	WriteRetries     int  `yaml:"write_retries"`
	RetryDelayMS     int  `yaml:"retry_delay_ms"`
	OperationTimeout int  `yaml:"operation_timeout_seconds"`
	SeedExamples     bool `yaml:"seed_examples"`
}

type AuthConfig struct {
	JWTSecret         string `yaml:"jwt_secret"`
	AdminPasswordHash string `yaml:"admin_password_hash"`
	TokenTTLHours     int    `yaml:"token_ttl_hours"`
	CookieName        string `yaml:"cookie_name"`
	SecureCookie      bool   `yaml:"secure_cookie"`
}

// RateLimitPolicy is a fixed window of Window seconds admitting MaxRequests.
type RateLimitPolicy struct {
	MaxRequests int `yaml:"max_requests"`
	WindowSec   int `yaml:"window_seconds"`
}

func (p RateLimitPolicy) Window() time.Duration {
	return time.Duration(p.WindowSec) * time.Second
}

type RateLimitConfig struct {
	Auth   RateLimitPolicy `yaml:"auth"`
	Upload RateLimitPolicy `yaml:"upload"`
	API    RateLimitPolicy `yaml:"api"`
	Admin  RateLimitPolicy `yaml:"admin"`
}

type MaintenanceConfig struct {
	BackupRetentionDays int    `yaml:"backup_retention_days"`
	BackupPruneCron     string `yaml:"backup_prune_cron"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func (s StorageConfig) MaxUploadBytes() int64 {
	return s.MaxUploadMB * 1024 * 1024
}

func (s StorageConfig) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelayMS) * time.Millisecond
}

func (s StorageConfig) Timeout() time.Duration {
	return time.Duration(s.OperationTimeout) * time.Second
}

func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLHours) * time.Hour
}

// Load reads configPath (default config.yaml), falling back to defaults when
// the file does not exist. A .env file next to the process is loaded first so
// that its variables take part in the environment overrides.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.overrideFromEnv()
	cfg.applyFloors()
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           "8080",
			Mode:           "debug",
			AllowedOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			DataDir:          "data",
			UploadDir:        "public/uploads",
			PublicPrefix:     "/uploads",
			MaxUploadMB:      100,
			CompactIDs:       true,
			WriteRetries:     3,
			RetryDelayMS:     100,
			OperationTimeout: 10,
			SeedExamples:     true,
		},
		Auth: AuthConfig{
			JWTSecret:     "studio-portfolio-secret-change-in-production",
			TokenTTLHours: 24,
			CookieName:    "admin-token",
		},
		RateLimit: RateLimitConfig{
			Auth:   RateLimitPolicy{MaxRequests: 5, WindowSec: 15 * 60},
			Upload: RateLimitPolicy{MaxRequests: 20, WindowSec: 60},
			API:    RateLimitPolicy{MaxRequests: 100, WindowSec: 60},
			Admin:  RateLimitPolicy{MaxRequests: 50, WindowSec: 60},
		},
		Maintenance: MaintenanceConfig{
			BackupRetentionDays: 7,
			BackupPruneCron:     "0 3 * * *",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		c.Storage.DataDir = dir
	}
	if dir := os.Getenv("UPLOAD_DIR"); dir != "" {
		c.Storage.UploadDir = dir
	}
	if mb := os.Getenv("MAX_UPLOAD_MB"); mb != "" {
		if v, err := strconv.ParseInt(mb, 10, 64); err == nil {
			c.Storage.MaxUploadMB = v
		}
	}
	if compact := os.Getenv("COMPACT_PROJECT_IDS"); compact != "" {
		if v, err := strconv.ParseBool(compact); err == nil {
			c.Storage.CompactIDs = v
		}
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if hash := os.Getenv("ADMIN_PASSWORD_HASH"); hash != "" {
		c.Auth.AdminPasswordHash = hash
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// applyFloors replaces nonsensical zero values that would disable a safety net.
func (c *Config) applyFloors() {
	if c.Storage.WriteRetries < 0 {
		c.Storage.WriteRetries = 0
	}
	if c.Storage.OperationTimeout <= 0 {
		c.Storage.OperationTimeout = 10
	}
	if c.Storage.MaxUploadMB <= 0 {
		c.Storage.MaxUploadMB = 100
	}
	if c.Auth.TokenTTLHours <= 0 {
		c.Auth.TokenTTLHours = 24
	}
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = "admin-token"
	}
	if c.Storage.PublicPrefix == "" {
		c.Storage.PublicPrefix = "/uploads"
	}
}

// ProjectsFile is the path of the projects table.
func (c *Config) ProjectsFile() string {
	return filepath.Join(c.Storage.DataDir, "projects.json")
}

// MediaFile is the path of the media index table.
func (c *Config) MediaFile() string {
	return filepath.Join(c.Storage.DataDir, "media.json")
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
