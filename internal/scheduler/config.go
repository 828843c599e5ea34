package scheduler

import (
	"errors"
	"time"
)

// ErrInvalidConfig is returned when the scheduler is wired without its
// required collaborators.
var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

// Config tunes the period closer loop.
type Config struct {
	// RunInterval is the pause between RunOnce sweeps.
	RunInterval time.Duration
	// JobTimeout bounds one job execution.
	JobTimeout time.Duration
	// EnabledJobs limits which jobs run; empty enables all.
	EnabledJobs []string
}

func (c Config) withDefaults() Config {
	if c.RunInterval <= 0 {
		c.RunInterval = time.Hour
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 10 * time.Minute
	}
	return c
}
