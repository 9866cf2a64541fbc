package etfsync

import (
	"context"

	"github.com/rs/zerolog"
)

// Job adapts the sync service to the scheduler's Job interface so catalog
// synchronization can run on a cron schedule.
type Job struct {
	service *Service
	cfg     Config
	log     zerolog.Logger
}

// NewJob creates a scheduled sync job with a fixed configuration.
func NewJob(service *Service, cfg Config, log zerolog.Logger) *Job {
	return &Job{
		service: service,
		cfg:     cfg,
		log:     log.With().Str("job", "etf_sync").Logger(),
	}
}

// Name returns the job name
func (j *Job) Name() string {
	return "etf_sync"
}

// Run executes one sync pass. Partial failures are reported through the run
// statistics, not as an error.
func (j *Job) Run() error {
	stats, err := j.service.Run(context.Background(), j.cfg)
	if err != nil {
		return err
	}

	j.log.Info().
		Int("total_records", stats.TotalRecords).
		Int("errors", stats.Errors).
		Msg("scheduled sync finished")
	return nil
}
