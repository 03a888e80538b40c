// Package schedule raises the split reminder on a cron schedule.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNoSchedule is returned by New for an empty expression.
var ErrNoSchedule = errors.New("no split reminder schedule")

// Target receives the reminder. It decides whether a prompt is due.
type Target interface {
	RemindSplit()
}

// Standard five-field expressions plus descriptors such as @daily.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Reminder fires the split reminder on its schedule.
type Reminder struct {
	cron     *cron.Cron
	schedule cron.Schedule
	expr     string
	logger   *zerolog.Logger
}

// Parse validates a reminder expression.
func Parse(expression string) (cron.Schedule, error) {
	schedule, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// New creates a Reminder for expression in loc. A nil loc uses local time.
func New(expression string, loc *time.Location, target Target, logger *zerolog.Logger) (*Reminder, error) {
	if expression == "" {
		return nil, ErrNoSchedule
	}
	if logger == nil {
		logger = &log.Logger
	}
	if loc == nil {
		loc = time.Local
	}
	componentLogger := logger.With().Str("component", "schedule").Logger()

	schedule, err := Parse(expression)
	if err != nil {
		return nil, err
	}

	r := &Reminder{
		cron:     cron.New(cron.WithLocation(loc), cron.WithParser(parser)),
		schedule: schedule,
		expr:     expression,
		logger:   &componentLogger,
	}
	r.cron.Schedule(schedule, cron.FuncJob(func() {
		r.logger.Info().Str("schedule", expression).Msg("split reminder due")
		target.RemindSplit()
	}))
	return r, nil
}

// Next returns the next firing time after t.
func (r *Reminder) Next(t time.Time) time.Time {
	return r.schedule.Next(t)
}

// Start begins firing in the background.
func (r *Reminder) Start() {
	r.cron.Start()
	r.logger.Info().Str("schedule", r.expr).Time("next", r.Next(time.Now())).Msg("split reminder scheduled")
}

// Stop halts the schedule and waits for a running reminder to return.
func (r *Reminder) Stop() {
	<-r.cron.Stop().Done()
}
