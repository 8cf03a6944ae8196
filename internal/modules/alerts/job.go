package alerts

import "github.com/rs/zerolog"

// DailyJob adapts the alert service to the scheduler. A skipped run (missing
// recipient or SMTP settings) is logged, not treated as a failure.
type DailyJob struct {
	service *Service
	log     zerolog.Logger
}

// NewDailyJob creates a new daily alert job
func NewDailyJob(service *Service, log zerolog.Logger) *DailyJob {
	return &DailyJob{
		service: service,
		log:     log.With().Str("job", "daily_alert").Logger(),
	}
}

// Name implements scheduler.Job.
func (j *DailyJob) Name() string { return "daily_alert" }

// Run implements scheduler.Job.
func (j *DailyJob) Run() error {
	result, err := j.service.SendDaily(false)
	if err != nil {
		return err
	}
	if !result.Sent {
		j.log.Info().Str("reason", result.Message).Msg("Daily alert skipped")
	}
	return nil
}
