package usecase

import (
	"context"
	"time"

	"PaperTriage/internal/ports"
)

// Scheduler wires the interval driver with the ingest use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	request  IngestRequest
}

// NewScheduler returns a helper to start/stop recurring ingestion.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, req IngestRequest) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline, request: req}
}

// Start registers the ingest run with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		log := s.pipeline.logger.With("trigger", trigger.Format(time.RFC3339))
		if _, err := s.pipeline.Ingest(ctx, s.request); err != nil {
			log.Error("scheduled ingest failed", "error", err)
		}
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
