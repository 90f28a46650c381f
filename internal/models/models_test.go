package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	require.NotEmpty(t, base.ID)

	kept := BaseModel{ID: "fixed"}
	require.NoError(t, kept.BeforeCreate(nil))
	require.Equal(t, "fixed", kept.ID)
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	user := &User{}
	require.NoError(t, user.BeforeCreate(nil))
	require.NotEmpty(t, user.ID)

	session := &Session{}
	require.NoError(t, session.BeforeCreate(nil))
	require.NotEmpty(t, session.ID)
}

func TestRefreshTokenStateAddAndRemove(t *testing.T) {
	var state RefreshTokenState

	withA := state.WithTokenAdded("t1", "device-a")
	require.True(t, withA.Contains("t1"))
	tokenID, ok := withA.TokenForDevice("device-a")
	require.True(t, ok)
	require.Equal(t, "t1", tokenID)

	require.False(t, state.Contains("t1"), "original state must not change")

	withB := withA.WithTokenAdded("t2", "device-b")
	require.ElementsMatch(t, []string{"t1", "t2"}, withB.ValidTokenIDs)
	require.Equal(t, []string{"device-a", "device-b"}, withB.Devices())

	removed := withB.WithTokenRemoved("t1")
	require.False(t, removed.Contains("t1"))
	_, ok = removed.TokenForDevice("device-a")
	require.False(t, ok)
	require.True(t, withB.Contains("t1"), "original state must not change")
}

func TestRefreshTokenStateReplacesDeviceToken(t *testing.T) {
	state := RefreshTokenState{}.WithTokenAdded("old", "device-a").WithTokenAdded("new", "device-a")

	require.False(t, state.Contains("old"))
	require.True(t, state.Contains("new"))
	require.Len(t, state.ValidTokenIDs, 1)
}

func TestRefreshTokenStateDeviceRemovalAndClear(t *testing.T) {
	state := RefreshTokenState{}.
		WithTokenAdded("t1", "device-a").
		WithTokenAdded("t2", "device-b")

	withoutA := state.WithDeviceRemoved("device-a")
	require.False(t, withoutA.Contains("t1"))
	require.True(t, withoutA.Contains("t2"))

	unchanged := state.WithDeviceRemoved("missing")
	require.Equal(t, state.ValidTokenIDs, unchanged.ValidTokenIDs)

	cleared := state.Cleared()
	require.Empty(t, cleared.ValidTokenIDs)
	require.Empty(t, cleared.DeviceTokens)
	require.False(t, cleared.Contains("t2"))
}
