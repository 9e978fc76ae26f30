package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tuannvm/otrs-connector/internal/snapshot"
)

type options struct {
	Cron       *cron.Cron
	Location   *time.Location
	Store      snapshot.Store
	Forward    Forwarder
	RunTimeout time.Duration
}

// Option applies configuration to the scheduler.
type Option func(*options)

func defaultOptions() options {
	return options{Location: time.UTC, RunTimeout: 10 * time.Minute}
}

// WithCron supplies a preconfigured cron scheduler instance.
func WithCron(c *cron.Cron) Option {
	return func(o *options) {
		o.Cron = c
	}
}

// WithLocation sets the timezone schedules are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.Location = loc
	}
}

// WithStore sets where snapshots and run history are kept.
func WithStore(s snapshot.Store) Option {
	return func(o *options) {
		o.Store = s
	}
}

// WithForwarder sets where emitted messages go. The default logs them.
func WithForwarder(f Forwarder) Option {
	return func(o *options) {
		o.Forward = f
	}
}

// WithRunTimeout bounds a single job run.
func WithRunTimeout(d time.Duration) Option {
	return func(o *options) {
		o.RunTimeout = d
	}
}
