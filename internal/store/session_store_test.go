package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/sessiond/internal/database/testutil"
	"github.com/charlesng35/sessiond/internal/models"
)

func TestSessionStoreLifecycle(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	sessions := NewSessionStore(db)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, device := range []string{"d1", "d2", "d3"} {
		require.NoError(t, sessions.Create(ctx, &models.Session{
			UserID:    "u1",
			DeviceID:  device,
			IssuedAt:  now.Add(time.Duration(i) * time.Minute),
			ExpiresAt: now.Add(time.Hour),
		}))
	}
	require.NoError(t, sessions.Create(ctx, &models.Session{
		UserID:    "u1",
		DeviceID:  "stale",
		IssuedAt:  now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}))

	active, err := sessions.ListActive(ctx, "u1", now)
	require.NoError(t, err)
	require.Len(t, active, 3)
	require.Equal(t, []string{"d3", "d2", "d1"}, []string{active[0].DeviceID, active[1].DeviceID, active[2].DeviceID})

	all, err := sessions.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 4)

	require.ErrorIs(t, sessions.Create(ctx, &models.Session{UserID: "u2", DeviceID: "d1", IssuedAt: now, ExpiresAt: now}), ErrDuplicate)

	found, err := sessions.FindByDevice(ctx, "d2")
	require.NoError(t, err)
	require.Equal(t, "u1", found.UserID)

	_, err = sessions.FindByDevice(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	later := now.Add(10 * time.Minute)
	require.NoError(t, sessions.UpdateWindow(ctx, "u1", "d1", later, later.Add(time.Hour)))
	require.ErrorIs(t, sessions.UpdateWindow(ctx, "u2", "d1", later, later), ErrNotFound)

	active, err = sessions.ListActive(ctx, "u1", now)
	require.NoError(t, err)
	require.Equal(t, "d1", active[0].DeviceID)

	reaped, err := sessions.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, reaped, 1)
	require.Equal(t, "u1", reaped[0].UserID)
	require.Equal(t, "stale", reaped[0].DeviceID)

	reaped, err = sessions.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Empty(t, reaped)

	deleted, err := sessions.Delete(ctx, "u1", "d3")
	require.NoError(t, err)
	require.True(t, deleted)
	deleted, err = sessions.Delete(ctx, "u1", "d3")
	require.NoError(t, err)
	require.False(t, deleted)

	count, err := sessions.DeleteDevices(ctx, "u1", []string{"d2", "unknown"})
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	count, err = sessions.DeleteDevices(ctx, "u1", nil)
	require.NoError(t, err)
	require.Zero(t, count)

	count, err = sessions.DeleteByUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}
