package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/sessiond/internal/events"
)

func TestListActiveNewestFirst(t *testing.T) {
	env := setupAuthEnv(t)
	user := env.createUser(t, "alice")
	ctx := context.Background()

	first := env.login(t, user.ID, "laptop")
	second := env.login(t, user.ID, "phone")
	third := env.login(t, user.ID, "tablet")

	views, err := env.manager.ListActive(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, views, 3)
	require.Equal(t, []string{third.DeviceID, second.DeviceID, first.DeviceID},
		[]string{views[0].DeviceID, views[1].DeviceID, views[2].DeviceID})

	require.Equal(t, "tablet", views[0].Title)
	require.Equal(t, "10.0.0.1", views[0].IP)
	lastActive, err := time.Parse(time.RFC3339, views[2].LastActiveDate)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), lastActive)
	require.Equal(t, "2025-01-01T12:00:00.000Z", views[2].LastActiveDate)
}

func TestListActiveSkipsExpiredAndOtherUsers(t *testing.T) {
	env := setupAuthEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	ctx := context.Background()

	env.login(t, alice.ID, "old")
	env.clock.Advance(50 * time.Minute)
	fresh := env.login(t, alice.ID, "new")
	env.login(t, bob.ID, "bob-laptop")

	env.clock.Advance(15 * time.Minute)

	views, err := env.manager.ListActive(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, fresh.DeviceID, views[0].DeviceID)
}

func TestDeleteSessionOwnership(t *testing.T) {
	env := setupAuthEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	ctx := context.Background()

	alicePair := env.login(t, alice.ID, "laptop")
	bobPair := env.login(t, bob.ID, "phone")

	require.ErrorIs(t, env.manager.Delete(ctx, alice.ID, "no-such-device"), ErrSessionNotFound)
	require.ErrorIs(t, env.manager.Delete(ctx, alice.ID, bobPair.DeviceID), ErrForbidden)

	// Bob's session survived the forbidden attempt.
	_, err := env.auth.VerifyRefreshToken(ctx, bobPair.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, env.manager.Delete(ctx, alice.ID, alicePair.DeviceID))

	_, err = env.sessions.FindByDevice(ctx, alicePair.DeviceID)
	require.Error(t, err)
	_, err = env.auth.Refresh(ctx, alicePair.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)

	require.ErrorIs(t, env.manager.Delete(ctx, alice.ID, alicePair.DeviceID), ErrSessionNotFound)

	terminated := env.events.OfType(events.SessionTerminated)
	require.Len(t, terminated, 1)
	require.Equal(t, "revoked", terminated[0].Reason)
}

func TestDeleteAllExceptCurrent(t *testing.T) {
	env := setupAuthEnv(t)
	user := env.createUser(t, "carol")
	ctx := context.Background()

	d1 := env.login(t, user.ID, "one")
	d2 := env.login(t, user.ID, "two")
	d3 := env.login(t, user.ID, "three")

	removed, err := env.manager.DeleteAllExceptCurrent(ctx, user.ID, d2.DeviceID)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	views, err := env.manager.ListActive(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, d2.DeviceID, views[0].DeviceID)

	for _, pair := range []TokenPair{d1, d3} {
		_, err := env.auth.Refresh(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, ErrUnauthorized)
	}

	next, err := env.auth.Refresh(ctx, d2.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, d2.DeviceID, next.DeviceID)
}

func TestDeleteAllExceptCurrentRevokesTokensWithoutSessionRow(t *testing.T) {
	env := setupAuthEnv(t)
	user := env.createUser(t, "dan")
	ctx := context.Background()

	current := env.login(t, user.ID, "current")
	orphan := env.login(t, user.ID, "orphan")
	_, err := env.sessions.Delete(ctx, user.ID, orphan.DeviceID)
	require.NoError(t, err)

	removed, err := env.manager.DeleteAllExceptCurrent(ctx, user.ID, current.DeviceID)
	require.NoError(t, err)
	require.Zero(t, removed)

	_, err = env.auth.Refresh(ctx, orphan.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestDeleteAll(t *testing.T) {
	env := setupAuthEnv(t)
	user := env.createUser(t, "erin")
	other := env.createUser(t, "other")
	ctx := context.Background()

	pairs := []TokenPair{env.login(t, user.ID, "a"), env.login(t, user.ID, "b")}
	untouched := env.login(t, other.ID, "c")

	removed, err := env.manager.DeleteAll(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	state := env.tokenState(t, user.ID)
	require.Empty(t, state.ValidTokenIDs)
	require.Empty(t, state.DeviceTokens)

	for _, pair := range pairs {
		_, err := env.auth.Refresh(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, ErrUnauthorized)
	}
	_, err = env.auth.Refresh(ctx, untouched.RefreshToken)
	require.NoError(t, err)
}

func TestCleanupExpired(t *testing.T) {
	env := setupAuthEnv(t)
	user := env.createUser(t, "frank")
	ctx := context.Background()

	env.login(t, user.ID, "old-1")
	env.login(t, user.ID, "old-2")
	env.clock.Advance(45 * time.Minute)
	keep := env.login(t, user.ID, "new")

	env.clock.Advance(20 * time.Minute)

	removed, err := env.manager.CleanupExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	all, err := env.sessions.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, keep.DeviceID, all[0].DeviceID)

	state := env.tokenState(t, user.ID)
	require.Equal(t, []string{keep.DeviceID}, state.Devices())
	require.Len(t, state.ValidTokenIDs, 1)

	removed, err = env.manager.CleanupExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, removed)

	expired := env.events.OfType(events.SessionsExpired)
	require.Len(t, expired, 1)
	require.Equal(t, int64(2), expired[0].Count)
}

func TestCleanupExpiredPrunesTokenState(t *testing.T) {
	env := setupAuthEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	var pairs []TokenPair
	for i := 0; i < 5; i++ {
		pairs = append(pairs, env.login(t, alice.ID, "device"))
	}
	env.login(t, bob.ID, "phone")
	require.Len(t, env.tokenState(t, alice.ID).ValidTokenIDs, 5)

	env.clock.Advance(2 * time.Hour)

	removed, err := env.manager.CleanupExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(6), removed)

	for _, userID := range []string{alice.ID, bob.ID} {
		state := env.tokenState(t, userID)
		require.Empty(t, state.ValidTokenIDs)
		require.Empty(t, state.Devices())
	}

	_, err = env.auth.Refresh(ctx, pairs[0].RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)

	fresh := env.login(t, alice.ID, "laptop")
	require.Equal(t, []string{fresh.DeviceID}, env.tokenState(t, alice.ID).Devices())
}

func TestDeleteForMissingUserStillRemovesRow(t *testing.T) {
	env := setupAuthEnv(t)
	user := env.createUser(t, "grace")
	ctx := context.Background()

	pair := env.login(t, user.ID, "laptop")
	require.NoError(t, env.users.SoftDelete(ctx, user.ID))

	require.NoError(t, env.manager.Delete(ctx, user.ID, pair.DeviceID))
	_, err := env.sessions.FindByDevice(ctx, pair.DeviceID)
	require.Error(t, err)
}

func TestNewSessionServiceValidatesDependencies(t *testing.T) {
	_, err := NewSessionService(nil, nil, SessionConfig{})
	require.Error(t, err)
}
