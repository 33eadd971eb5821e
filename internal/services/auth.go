package services

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/studiofolio/portfolio/backend/internal/config"
	"github.com/studiofolio/portfolio/backend/internal/utils"
)

const (
	AdminSubject = "admin"
	AdminRole    = "admin"
)

// AuthService issues and checks admin session tokens. There is a single
// admin: one bcrypt password hash and one signing secret, both from config.
type AuthService struct {
	secret       []byte
	passwordHash string
	ttl          time.Duration
	now          func() time.Time
	log          zerolog.Logger
}

type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

type LoginResult struct {
	Token    string    `json:"token"`
	ExpireAt time.Time `json:"expire_at"`
}

func NewAuthService(cfg *config.AuthConfig, log zerolog.Logger) *AuthService {
	if cfg.AdminPasswordHash == "" {
		log.Warn().Msg("no admin password hash configured, admin login is disabled")
	}
	return &AuthService{
		secret:       []byte(cfg.JWTSecret),
		passwordHash: cfg.AdminPasswordHash,
		ttl:          cfg.TokenTTL(),
		now:          time.Now,
		log:          log,
	}
}

// WithClock replaces the time source.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

func (s *AuthService) TTL() time.Duration { return s.ttl }

// VerifyPassword compares candidate against the stored hash.
func (s *AuthService) VerifyPassword(candidate string) bool {
	return utils.CheckPassword(candidate, s.passwordHash)
}

// IssueToken signs a token for the admin subject expiring after the TTL.
func (s *AuthService) IssueToken() (string, time.Time, error) {
	issued := s.now()
	token, err := utils.GenerateToken(s.secret, AdminSubject, AdminRole, issued, s.ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, issued.Add(s.ttl), nil
}

// VerifyToken reports whether token is validly signed, unexpired and
// carries the admin role. It never returns an error.
func (s *AuthService) VerifyToken(token string) bool {
	if token == "" {
		return false
	}
	claims, err := utils.ParseToken(s.secret, token, s.now())
	if err != nil {
		s.log.Debug().Err(err).Msg("token rejected")
		return false
	}
	return claims.Subject == AdminSubject && claims.Role == AdminRole
}

// Login exchanges the admin password for a session token.
func (s *AuthService) Login(password string) (*LoginResult, error) {
	if !s.VerifyPassword(password) {
		return nil, ErrUnauthorized
	}

	token, expireAt, err := s.IssueToken()
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpireAt: expireAt}, nil
}
