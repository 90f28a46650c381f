package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/charlesng35/sessiond/internal/database"
)

// Status encodes the outcome of a health check.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

const defaultCheckTimeout = 2 * time.Second

// CheckFunc checks one dependency.
type CheckFunc func(ctx context.Context) error

// Result captures a single dependency check outcome.
type Result struct {
	Component  string `json:"component"`
	Status     Status `json:"status"`
	Details    string `json:"details,omitempty"`
	DurationMS int64  `json:"durationMs"`
}

// Report aggregates check results.
type Report struct {
	Status Status   `json:"status"`
	Checks []Result `json:"checks"`
}

// Healthy reports whether every check succeeded.
func (r Report) Healthy() bool {
	return r.Status == StatusUp
}

type check struct {
	name string
	fn   CheckFunc
}

// Health runs the registered dependency checks.
type Health struct {
	checks  []check
	timeout time.Duration
}

// NewHealth constructs an empty set of checks; each check is bounded by timeout.
func NewHealth(timeout time.Duration) *Health {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &Health{timeout: timeout}
}

// Register appends a named check. Nil checks are ignored.
func (h *Health) Register(name string, fn CheckFunc) {
	if name == "" || fn == nil {
		return
	}
	h.checks = append(h.checks, check{name: name, fn: fn})
}

// Evaluate executes all checks sequentially. A timed out check degrades the
// report; any other failure marks it down.
func (h *Health) Evaluate(ctx context.Context) Report {
	report := Report{Status: StatusUp, Checks: make([]Result, 0, len(h.checks))}

	for _, c := range h.checks {
		result := h.run(ctx, c)
		report.Checks = append(report.Checks, result)

		switch result.Status {
		case StatusDown:
			report.Status = StatusDown
		case StatusDegraded:
			if report.Status != StatusDown {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

func (h *Health) run(ctx context.Context, c check) (result Result) {
	start := time.Now()
	result = Result{Component: c.name, Status: StatusUp}

	defer func() {
		if rec := recover(); rec != nil {
			result.Status = StatusDown
			result.Details = fmt.Sprint(rec)
		}
		result.DurationMS = time.Since(start).Milliseconds()
	}()

	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := c.fn(checkCtx); err != nil {
		result.Status = StatusDown
		if errors.Is(err, context.DeadlineExceeded) {
			result.Status = StatusDegraded
		}
		result.Details = err.Error()
	}
	return result
}

// DatabaseCheck pings the database handle.
func DatabaseCheck(db *gorm.DB) CheckFunc {
	return func(ctx context.Context) error {
		return database.Ping(ctx, db)
	}
}

// RedisCheck pings the Redis client.
func RedisCheck(client redis.UniversalClient) CheckFunc {
	return func(ctx context.Context) error {
		if client == nil {
			return errors.New("redis not configured")
		}
		return client.Ping(ctx).Err()
	}
}
