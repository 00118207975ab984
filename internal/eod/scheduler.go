package eod

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DailyResetScheduler drives Service.ResetDailyCounters from a cron
// expression (base §6 end_of_day.daily_reset_cron) using a robfig/cron
// runner.
type DailyResetScheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

func NewDailyResetScheduler(log zerolog.Logger) *DailyResetScheduler {
	return &DailyResetScheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "eod_daily_reset").Logger(),
	}
}

// Start registers the EOD service's daily reset against schedule and
// starts the cron runner.
func (d *DailyResetScheduler) Start(schedule string, svc *Service) error {
	_, err := d.cron.AddFunc(schedule, func() {
		svc.ResetDailyCounters()
	})
	if err != nil {
		return err
	}
	d.cron.Start()
	d.log.Info().Str("schedule", schedule).Msg("daily reset scheduler started")
	return nil
}

// Stop waits for the cron runner to finish its current tick and exit.
func (d *DailyResetScheduler) Stop() {
	ctx := d.cron.Stop()
	<-ctx.Done()
	d.log.Info().Msg("daily reset scheduler stopped")
}
