package eventstest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/sessiond/internal/events"
)

func TestRecorderRecordsEvents(t *testing.T) {
	var rec Recorder
	ctx := context.Background()

	require.NoError(t, rec.Publish(ctx, events.Event{Type: events.SessionCreated, DeviceID: "d1"}))
	require.NoError(t, rec.Publish(ctx, events.Event{Type: events.SessionTerminated, DeviceID: "d1", Reason: "logout"}))

	require.Len(t, rec.Events(), 2)
	terminated := rec.OfType(events.SessionTerminated)
	require.Len(t, terminated, 1)
	require.Equal(t, "logout", terminated[0].Reason)
}
