package event_test

import (
	"testing"
	"time"

	"github.com/lukasz26671/webaudioprov/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activity(status event.FetchStatus) event.FetchActivity {
	return event.FetchActivity{ItemID: "PpjdTwQwWWY", Title: "Some Song", Kind: "audio", Status: status}
}

func Test_Dispatch_DeliversToHandlerFunction(t *testing.T) {
	t.Parallel()

	bus := event.New()
	var seen []event.Event
	bus.RegisterHandlerFunction(event.FETCH_UPDATE, func(ev event.Event, _ event.Payload) {
		seen = append(seen, ev)
	})

	bus.Dispatch(event.FETCH_UPDATE, activity(event.FETCHING))
	bus.Dispatch(event.FETCH_COMPLETE, activity(event.COMPLETE))

	assert.Equal(t, []event.Event{event.FETCH_UPDATE}, seen)
}

func Test_Dispatch_DeliversToAsyncHandlerFunction(t *testing.T) {
	t.Parallel()

	bus := event.New()
	seen := make(chan event.Payload, 1)
	bus.RegisterAsyncHandlerFunction(event.FETCH_COMPLETE, func(_ event.Event, payload event.Payload) {
		seen <- payload
	})

	bus.Dispatch(event.FETCH_COMPLETE, activity(event.COMPLETE))

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		select {
		case payload := <-seen:
			assert.Equal(c, event.COMPLETE, payload.(event.FetchActivity).Status)
		default:
			assert.Fail(c, "async handler has not run yet")
		}
	}, time.Second, 10*time.Millisecond)
}

func Test_Dispatch_DeliversToHandlerChannel(t *testing.T) {
	t.Parallel()

	bus := event.New()
	channel := make(event.HandlerChannel, 2)
	bus.RegisterHandlerChannel(channel, event.FETCH_UPDATE, event.FETCH_COMPLETE)

	bus.Dispatch(event.FETCH_COMPLETE, activity(event.COMPLETE))

	select {
	case message := <-channel:
		require.Equal(t, event.FETCH_COMPLETE, message.Event)
		payload, ok := message.Payload.(event.FetchActivity)
		require.True(t, ok)
		assert.Equal(t, event.COMPLETE, payload.Status)
	case <-time.After(time.Second):
		t.Fatal("no message received on handler channel")
	}
}

func Test_Dispatch_RejectsIllegalPayload(t *testing.T) {
	t.Parallel()

	bus := event.New()
	channel := make(event.HandlerChannel, 1)
	bus.RegisterHandlerChannel(channel, event.FETCH_UPDATE)

	bus.Dispatch(event.FETCH_UPDATE, "not an activity payload")

	assert.Empty(t, channel)
}
