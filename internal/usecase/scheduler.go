package usecase

import (
	"context"
	"log/slog"
	"time"

	"CaseCurator/internal/domain"
	"CaseCurator/internal/ports"
)

// Scheduler wires a cadence driver to bulk-job polling: on every tick each open
// job is polled once and completed jobs are collected.
type Scheduler struct {
	driver    ports.Scheduler
	generator *Generator
	logger    *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring polling.
func NewScheduler(driver ports.Scheduler, generator *Generator, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, generator: generator, logger: logger.With("component", "poller")}
}

// Start registers the polling job with the provided driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.generator == nil || s.generator.deps.Orchestrator == nil {
		return nil
	}
	return s.driver.Start(ctx, func(time.Time) {
		s.Tick(ctx)
	})
}

// Tick advances every open job by one poll and collects completed ones.
// It returns the number of jobs collected.
func (s *Scheduler) Tick(ctx context.Context) int {
	jobs, err := s.generator.deps.Orchestrator.Resume(ctx)
	if err != nil {
		s.logger.Error("list open jobs", "error", err)
		return 0
	}
	collected := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			return collected
		}
		if job.State != domain.JobCompleted {
			res, err := s.generator.PollBulk(ctx, job.ID)
			if err != nil {
				s.logger.Warn("poll job", "job_id", job.ID, "error", err)
				continue
			}
			job = res.Job
		}
		if job.State != domain.JobCompleted || job.Collected {
			continue
		}
		if _, err := s.generator.CollectBulk(ctx, job.ID); err != nil {
			s.logger.Error("collect job", "job_id", job.ID, "error", err)
			continue
		}
		collected++
	}
	return collected
}

// Stop gracefully tears down the underlying driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
