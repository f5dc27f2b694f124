// Package scheduler runs the digest batch job on its cron schedule.
package scheduler

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/sneakyguy/reddit-mentions-bot/internal/config"
	"github.com/sneakyguy/reddit-mentions-bot/internal/digest"
)

// Service schedules the digest job.
type Service struct {
	config        *config.Config
	digestService *digest.Service
	cron          *cron.Cron
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, digestService *digest.Service) *Service {
	return &Service{
		config:        cfg,
		digestService: digestService,
		cron:          cron.New(cron.WithSeconds()),
	}
}

// Start begins the scheduled digest runs
func (s *Service) Start() error {
	var cronExpression string

	switch s.config.DigestSchedule {
	case "weekly":
		// Run weekly on Monday at 9 AM UTC
		cronExpression = "0 0 9 * * MON"
	default:
		// Run daily at 9 AM UTC
		cronExpression = "0 0 9 * * *"
	}

	_, err := s.cron.AddFunc(cronExpression, func() {
		logrus.Info("Starting scheduled digest run")
		if _, err := s.digestService.Run(context.Background()); err != nil {
			if errors.Is(err, digest.ErrAlreadyRunning) {
				logrus.Warn("Scheduled digest run skipped, another run is in progress")
				return
			}
			logrus.Errorf("Scheduled digest run failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with %s digest schedule", s.config.DigestSchedule)
	return nil
}

// Stop stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		logrus.Info("Scheduler stopped")
	}
}
