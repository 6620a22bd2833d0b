package ratelimit

import "time"

// Config defines one limit
type Config struct {
	Name   string        // Namespaces the counters, e.g. "upload"
	Limit  int64         // Requests allowed per window
	Window time.Duration // Time window
}

// DefaultUploadConfig allows 10 uploads per client per minute
var DefaultUploadConfig = Config{
	Name:   "upload",
	Limit:  10,
	Window: time.Minute,
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = DefaultUploadConfig.Name
	}
	if c.Limit <= 0 {
		c.Limit = DefaultUploadConfig.Limit
	}
	if c.Window < time.Second {
		c.Window = DefaultUploadConfig.Window
	}
	return c
}

func (c Config) windowSeconds() int {
	return int(c.Window / time.Second)
}
