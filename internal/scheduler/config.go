package scheduler

import "time"

// Config controls the billing scheduler. AutoGenerate issues the previous
// month's invoices without an operator; overdue marking always runs.
type Config struct {
	RunInterval  time.Duration
	JobTimeout   time.Duration
	AutoGenerate bool
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  time.Hour,
		JobTimeout:   10 * time.Minute,
		AutoGenerate: true,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
