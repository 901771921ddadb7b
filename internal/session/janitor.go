package session

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type JanitorOptions struct {
	// Schedule is a cron spec such as "@every 5m".
	Schedule string
	Idle     time.Duration
	Logger   *slog.Logger
}

// StartJanitor evicts idle studios on a schedule. The returned func stops it.
func (s *Store) StartJanitor(opts JanitorOptions) (func(), error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	idle := opts.Idle
	if idle <= 0 {
		idle = 30 * time.Minute
	}

	schedule := opts.Schedule
	if schedule == "" {
		schedule = "@every 5m"
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if evicted := s.Sweep(time.Now(), idle); len(evicted) > 0 {
			logger.Info("idle sessions evicted", "count", len(evicted), "remaining", s.Len())
		}
	})
	if err != nil {
		return nil, fmt.Errorf("janitor schedule %q: %w", schedule, err)
	}

	c.Start()
	return func() { <-c.Stop().Done() }, nil
}
