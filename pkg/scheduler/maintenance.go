package scheduler

import (
	"context"
	"time"

	"github.com/fadedpez/stemverse/internal/logging"
)

const (
	DefaultRotationInterval = 24 * time.Hour
	DefaultPruneInterval    = 7 * 24 * time.Hour
)

// IndexMaintainer is the archive surface the maintenance tasks drive
type IndexMaintainer interface {
	RotateIndices(ctx context.Context) error
	PruneOldIndices(ctx context.Context) ([]string, error)
}

// MaintenanceScheduler keeps the transaction archive rotated and pruned
type MaintenanceScheduler struct {
	scheduler        *Scheduler
	archive          IndexMaintainer
	logger           *logging.Logger
	rotationInterval time.Duration
	pruneInterval    time.Duration
}

// NewMaintenanceScheduler creates the archive maintenance scheduler. Zero
// intervals fall back to daily rotation and weekly pruning.
func NewMaintenanceScheduler(archive IndexMaintainer, rotationInterval, pruneInterval time.Duration, logger *logging.Logger) *MaintenanceScheduler {
	if logger == nil {
		logger = logging.Default
	}
	if rotationInterval <= 0 {
		rotationInterval = DefaultRotationInterval
	}
	if pruneInterval <= 0 {
		pruneInterval = DefaultPruneInterval
	}
	return &MaintenanceScheduler{
		scheduler:        NewScheduler(logger),
		archive:          archive,
		logger:           logger,
		rotationInterval: rotationInterval,
		pruneInterval:    pruneInterval,
	}
}

// Start registers the maintenance tasks and starts them
func (s *MaintenanceScheduler) Start(ctx context.Context) {
	if s.scheduler.Running() {
		return
	}
	s.scheduler.AddTask("index_rotation", s.rotationInterval, s.rotateIndices)
	s.scheduler.AddTask("index_pruning", s.pruneInterval, s.pruneOldIndices)
	s.scheduler.Start(ctx)
}

// Stop stops the maintenance scheduler
func (s *MaintenanceScheduler) Stop() {
	s.scheduler.Stop()
}

func (s *MaintenanceScheduler) rotateIndices(ctx context.Context) error {
	return s.archive.RotateIndices(ctx)
}

func (s *MaintenanceScheduler) pruneOldIndices(ctx context.Context) error {
	pruned, err := s.archive.PruneOldIndices(ctx)
	if err != nil {
		return err
	}
	if len(pruned) > 0 {
		s.logger.WithField("indices", pruned).Info("Pruned archive indices")
	}
	return nil
}
