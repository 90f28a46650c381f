package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/sessiond/pkg/logger"
)

const (
	defaultSessionSpec = "@hourly"
	defaultSweepSpec   = "@every 1m"
)

// SessionReaper removes expired session records.
type SessionReaper interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Sweeper drops idle in-memory rate limit windows.
type Sweeper interface {
	Sweep() int
}

// Cleaner coordinates background maintenance: purging expired sessions and
// sweeping idle rate limit keys.
type Cleaner struct {
	sessions SessionReaper
	sweeper  Sweeper
	cron     *cron.Cron
	log      *zap.Logger
	timeout  time.Duration

	sessionSchedule string
	sweepSchedule   string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSessionSchedule overrides the cron schedule for session cleanup.
func WithSessionSchedule(schedule string) Option {
	return func(cleaner *Cleaner) {
		if schedule != "" {
			cleaner.sessionSchedule = schedule
		}
	}
}

// WithSweeper registers an in-memory rate limit store to sweep.
func WithSweeper(s Sweeper) Option {
	return func(cleaner *Cleaner) {
		cleaner.sweeper = s
	}
}

// WithSweepSchedule overrides the cron schedule for rate limit sweeping.
func WithSweepSchedule(schedule string) Option {
	return func(cleaner *Cleaner) {
		if schedule != "" {
			cleaner.sweepSchedule = schedule
		}
	}
}

// WithJobTimeout bounds each scheduled cleanup run.
func WithJobTimeout(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.timeout = d
		}
	}
}

// WithLogger overrides the maintenance logger.
func WithLogger(log *zap.Logger) Option {
	return func(cleaner *Cleaner) {
		if log != nil {
			cleaner.log = log
		}
	}
}

// NewCleaner constructs a Cleaner. A nil reaper skips session cleanup.
func NewCleaner(sessions SessionReaper, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sessions:        sessions,
		timeout:         time.Minute,
		sessionSchedule: defaultSessionSpec,
		sweepSchedule:   defaultSweepSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it.
// Job failures are logged and retried on the next tick.
func (c *Cleaner) Start() error {
	if c.sessions == nil && c.sweeper == nil {
		return nil
	}

	if c.sessions != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, c.runSessionCleanup); err != nil {
			return err
		}
	}

	if c.sweeper != nil {
		if _, err := c.cron.AddFunc(c.sweepSchedule, c.runSweep); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler; the returned context is done once running jobs complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Used at
// startup, during graceful shutdown and in tests.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.sessions != nil {
		if _, err := c.sessions.CleanupExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.sweeper != nil {
		c.sweeper.Sweep()
	}

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		errs = multierr.Append(errs, err)
	}

	return errs
}

func (c *Cleaner) runSessionCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if _, err := c.sessions.CleanupExpired(ctx); err != nil {
		c.log.Warn("session cleanup failed", zap.Error(err))
	}
}

func (c *Cleaner) runSweep() {
	if dropped := c.sweeper.Sweep(); dropped > 0 {
		c.log.Debug("rate limit keys swept", zap.Int("count", dropped))
	}
}
