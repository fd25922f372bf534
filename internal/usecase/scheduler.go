package usecase

import (
	"context"
	"log/slog"
	"time"

	"ChartAggregator/internal/ports"
)

// Scheduler wires the ticker driver with the acquisition use case.
type Scheduler struct {
	driver      ports.Scheduler
	acquisition *Acquisition
	logger      *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring acquisitions.
func NewScheduler(driver ports.Scheduler, acquisition *Acquisition, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{driver: driver, acquisition: acquisition, logger: log}
}

// Start registers the acquisition with the provided scheduler. Each tick is one pass; errors
// are logged and the next tick runs regardless.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.acquisition == nil {
		return nil
	}

	job := func(trigger time.Time) {
		report, err := s.acquisition.Run(ctx, trigger)
		if err != nil {
			s.logger.Error("scheduled acquisition failed", "batch", report.BatchID, "error", err)
			return
		}
		s.logger.Info("scheduled acquisition done", "batch", report.BatchID, "runs", len(report.Runs))
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
