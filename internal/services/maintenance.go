package services

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/studiofolio/portfolio/backend/internal/config"
	"github.com/studiofolio/portfolio/backend/internal/store"
)

// MaintenanceService prunes the backup copies the store leaves behind when
// it falls back to direct writes.
type MaintenanceService struct {
	dataDir   string
	retention time.Duration
	spec      string
	now       func() time.Time
	log       zerolog.Logger

	cronScheduler  *cron.Cron
	currentEntryID cron.EntryID
}

func NewMaintenanceService(dataDir string, cfg config.MaintenanceConfig, log zerolog.Logger) *MaintenanceService {
	return &MaintenanceService{
		dataDir:   dataDir,
		retention: time.Duration(cfg.BackupRetentionDays) * 24 * time.Hour,
		spec:      cfg.BackupPruneCron,
		now:       time.Now,
		log:       log,
	}
}

// StartScheduler registers the prune job. An empty cron expression or a
// non-positive retention leaves pruning off.
func (s *MaintenanceService) StartScheduler() error {
	if s.spec == "" || s.retention <= 0 {
		s.log.Info().Msg("backup pruning disabled")
		return nil
	}

	s.cronScheduler = cron.New()
	entryID, err := s.cronScheduler.AddFunc(s.spec, func() {
		s.PruneBackups()
	})
	if err != nil {
		return err
	}
	s.currentEntryID = entryID
	s.cronScheduler.Start()

	s.log.Info().Str("cron", s.spec).Dur("retention", s.retention).Msg("backup pruning scheduled")
	return nil
}

func (s *MaintenanceService) StopScheduler() {
	if s.cronScheduler != nil {
		<-s.cronScheduler.Stop().Done()
	}
}

// PruneBackups removes backups older than the retention period and returns
// how many were deleted.
func (s *MaintenanceService) PruneBackups() int {
	removed, err := store.PruneBackups(s.dataDir, s.now().Add(-s.retention))
	for _, name := range removed {
		s.log.Info().Str("file", name).Msg("pruned backup")
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("backup pruning incomplete")
	}
	return len(removed)
}
