package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/sessiond/internal/database"
	"github.com/charlesng35/sessiond/internal/database/testutil"
)

func TestHealthEvaluate(t *testing.T) {
	h := NewHealth(time.Second)
	require.True(t, h.Evaluate(context.Background()).Healthy())

	h.Register("ok", func(context.Context) error { return nil })
	report := h.Evaluate(context.Background())
	require.Equal(t, StatusUp, report.Status)
	require.Len(t, report.Checks, 1)
	require.Equal(t, "ok", report.Checks[0].Component)

	h.Register("slow", func(ctx context.Context) error { return context.DeadlineExceeded })
	require.Equal(t, StatusDegraded, h.Evaluate(context.Background()).Status)

	h.Register("broken", func(context.Context) error { return errors.New("boom") })
	report = h.Evaluate(context.Background())
	require.Equal(t, StatusDown, report.Status)
	require.False(t, report.Healthy())
	require.Equal(t, "boom", report.Checks[2].Details)
}

func TestHealthRecoversPanickingCheck(t *testing.T) {
	h := NewHealth(0)
	h.Register("panics", func(context.Context) error { panic("kaboom") })
	h.Register("nil", nil)

	report := h.Evaluate(context.Background())
	require.Len(t, report.Checks, 1)
	require.Equal(t, StatusDown, report.Status)
	require.Equal(t, "kaboom", report.Checks[0].Details)
}

func TestHealthCheckTimeout(t *testing.T) {
	h := NewHealth(20 * time.Millisecond)
	h.Register("blocked", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Equal(t, StatusDegraded, h.Evaluate(context.Background()).Status)
}

func TestDatabaseCheck(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	require.NoError(t, DatabaseCheck(db)(context.Background()))

	require.NoError(t, database.Close(db))
	require.Error(t, DatabaseCheck(db)(context.Background()))
	require.Error(t, DatabaseCheck(nil)(context.Background()))
}

func TestRedisCheck(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, RedisCheck(client)(context.Background()))

	srv.Close()
	require.Error(t, RedisCheck(client)(context.Background()))
	require.Error(t, RedisCheck(nil)(context.Background()))
}
