package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/threadsign/ideas-bot/internal/config"
	"github.com/threadsign/ideas-bot/internal/pipeline"
)

// Service handles scheduling of pipeline runs
type Service struct {
	config   *config.Config
	pipeline *pipeline.Service
	cron     *cron.Cron
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, p *pipeline.Service) (*Service, error) {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.TimeZone, err)
	}

	return &Service{
		config:   cfg,
		pipeline: p,
		cron:     cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
	}, nil
}

// Start begins the scheduled pipeline runs: the full pipeline on the daily
// schedule, plus a digest-only run on its own cadence so new ideas reach
// subscribers without waiting for the next full run. Both are idempotent, so
// overlap with manual triggers is safe.
func (s *Service) Start() error {
	_, err := s.cron.AddFunc(s.config.PipelineSchedule, func() {
		logrus.Info("Starting scheduled pipeline run")
		report := s.pipeline.Run(context.Background())
		if !report.Success {
			logrus.Errorf("Scheduled pipeline run failed: %s", report.Message)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid pipeline schedule %q: %w", s.config.PipelineSchedule, err)
	}

	_, err = s.cron.AddFunc(s.config.DigestSchedule, func() {
		logrus.Info("Starting scheduled digest run")
		result := s.pipeline.SendDigests(context.Background())
		if !result.Success {
			logrus.Errorf("Scheduled digest run failed: %s", result.Error)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", s.config.DigestSchedule, err)
	}

	s.cron.Start()
	logrus.Infof("Scheduler started (pipeline: %q, digests: %q)",
		s.config.PipelineSchedule, s.config.DigestSchedule)
	return nil
}

// Stop stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		logrus.Info("Scheduler stopped")
	}
}
