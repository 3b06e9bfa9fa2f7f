package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronService manages scheduled background jobs
type CronService struct {
	cron          *cron.Cron
	relay         *OutboxRelayService
	relaySchedule string
	relayTimeout  time.Duration
	logger        *logrus.Logger
}

// NewCronService creates a new CronService. relaySchedule uses the
// six-field format with seconds.
func NewCronService(relay *OutboxRelayService, relaySchedule string, logger *logrus.Logger) *CronService {
	return &CronService{
		cron:          cron.New(cron.WithSeconds()),
		relay:         relay,
		relaySchedule: relaySchedule,
		relayTimeout:  time.Minute,
		logger:        logger,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	// Job 1: Relay booking events to the broker
	// Default "*/10 * * * * *" = every 10 seconds
	if _, err := s.cron.AddFunc(s.relaySchedule, s.relayOutboxJob); err != nil {
		return fmt.Errorf("failed to schedule outbox relay job: %w", err)
	}
	s.logger.WithField("schedule", s.relaySchedule).Info("Scheduled: Relay booking events")

	s.cron.Start()
	s.logger.Info("Cron service started")

	return nil
}

// Stop stops all cron jobs and waits for running ones
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// relayOutboxJob publishes pending booking events
func (s *CronService) relayOutboxJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.relayTimeout)
	defer cancel()

	startTime := time.Now()
	published, err := s.relay.RelayPending(ctx)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Outbox relay failed")
		return
	}

	if published > 0 {
		s.logger.WithFields(logrus.Fields{
			"published": published,
			"duration":  time.Since(startTime).String(),
		}).Info("[CRON] Relayed booking events")
	}
}

// RunRelayNow runs the outbox relay job immediately
func (s *CronService) RunRelayNow() {
	s.logger.Info("[MANUAL] Running outbox relay now...")
	s.relayOutboxJob()
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
