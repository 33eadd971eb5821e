package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studiofolio/portfolio/backend/internal/config"
)

func TestMaintenancePruneBackups(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 5, 20, 3, 0, 0, 0, time.UTC)

	old := filepath.Join(dir, "projects.json.backup-20240501T030000.000000000")
	fresh := filepath.Join(dir, "media.json.backup-20240519T030000.000000000")
	data := filepath.Join(dir, "projects.json")
	for _, name := range []string{old, fresh, data} {
		require.NoError(t, os.WriteFile(name, []byte("{}"), 0644))
	}
	require.NoError(t, os.Chtimes(old, now.AddDate(0, 0, -19), now.AddDate(0, 0, -19)))
	require.NoError(t, os.Chtimes(fresh, now.AddDate(0, 0, -1), now.AddDate(0, 0, -1)))
	require.NoError(t, os.Chtimes(data, now.AddDate(0, 0, -30), now.AddDate(0, 0, -30)))

	svc := NewMaintenanceService(dir, config.MaintenanceConfig{BackupRetentionDays: 7}, zerolog.Nop())
	svc.now = func() time.Time { return now }

	assert.Equal(t, 1, svc.PruneBackups())
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, data)
}

func TestMaintenanceScheduler(t *testing.T) {
	dir := t.TempDir()

	svc := NewMaintenanceService(dir, config.MaintenanceConfig{BackupRetentionDays: 7, BackupPruneCron: "0 3 * * *"}, zerolog.Nop())
	require.NoError(t, svc.StartScheduler())
	assert.NotZero(t, svc.currentEntryID)
	svc.StopScheduler()

	bad := NewMaintenanceService(dir, config.MaintenanceConfig{BackupRetentionDays: 7, BackupPruneCron: "not a cron"}, zerolog.Nop())
	assert.Error(t, bad.StartScheduler())

	off := NewMaintenanceService(dir, config.MaintenanceConfig{BackupPruneCron: "0 3 * * *"}, zerolog.Nop())
	require.NoError(t, off.StartScheduler())
	off.StopScheduler()
}
