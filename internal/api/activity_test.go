package api

import (
	"testing"

	"github.com/lukasz26671/webaudioprov/internal/event"
	"github.com/lukasz26671/webaudioprov/internal/http/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fetchActivity(status event.FetchStatus) event.FetchActivity {
	return event.FetchActivity{ItemID: "PpjdTwQwWWY", Title: "Some Song", Kind: "audio", Status: status}
}

// The hub is never started here; Send drops messages when the hub is
// offline, which lets these tests exercise the snapshot bookkeeping alone.
func Test_Broadcaster_ConnectionPayloadTracksInFlightFetches(t *testing.T) {
	t.Parallel()

	hub := newBroadcaster(websocket.New())

	payload := hub.connectionPayload()
	require.Empty(t, payload["in_flight"])

	hub.BroadcastFetchActivity(event.FETCH_UPDATE, fetchActivity(event.FETCHING))
	active, ok := hub.connectionPayload()["in_flight"].([]event.FetchActivity)
	require.True(t, ok)
	require.Len(t, active, 1)
	assert.Equal(t, event.FETCHING, active[0].Status)

	hub.BroadcastFetchActivity(event.FETCH_COMPLETE, fetchActivity(event.COMPLETE))
	assert.Empty(t, hub.connectionPayload()["in_flight"])
}

func Test_Broadcaster_FailedFetchLeavesFlight(t *testing.T) {
	t.Parallel()

	hub := newBroadcaster(websocket.New())
	hub.BroadcastFetchActivity(event.FETCH_UPDATE, fetchActivity(event.FETCHING))
	hub.BroadcastFetchActivity(event.FETCH_COMPLETE, fetchActivity(event.FAILED))
	assert.Empty(t, hub.connectionPayload()["in_flight"])
}

func Test_Broadcaster_IgnoresUnexpectedPayload(t *testing.T) {
	t.Parallel()

	hub := newBroadcaster(websocket.New())
	hub.BroadcastFetchActivity(event.FETCH_UPDATE, "not an activity payload")
	assert.Empty(t, hub.connectionPayload()["in_flight"])
}
