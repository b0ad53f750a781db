package api

import (
	"fmt"
	"sync"

	"github.com/lukasz26671/webaudioprov/internal/event"
	"github.com/lukasz26671/webaudioprov/internal/http/websocket"
	"github.com/lukasz26671/webaudioprov/pkg/logger"
)

const titleFetchActivity = "FETCH_ACTIVITY"

// broadcaster pushes fetch lifecycle updates from the event bus out to all
// connected activity socket clients. It also keeps a snapshot of the
// fetches currently in flight so newly connected clients can be furnished
// with the server's present state.
type broadcaster struct {
	socketHub *websocket.SocketHub
	mutex     sync.Mutex
	inFlight  map[string]event.FetchActivity
}

func newBroadcaster(socketHub *websocket.SocketHub) *broadcaster {
	return &broadcaster{
		socketHub: socketHub,
		inFlight:  make(map[string]event.FetchActivity),
	}
}

// BroadcastFetchActivity is registered against the event bus for fetch
// lifecycle events; its signature matches event.HandlerMethod.
func (hub *broadcaster) BroadcastFetchActivity(ev event.Event, payload event.Payload) {
	activity, ok := payload.(event.FetchActivity)
	if !ok {
		log.Emit(logger.WARNING, "Discarding %s event with unexpected payload type\n", ev)
		return
	}

	hub.trackActivity(activity)
	hub.socketHub.Send(&websocket.SocketMessage{
		Title: titleFetchActivity,
		Body:  map[string]interface{}{"event": string(ev), "activity": activity},
		Type:  websocket.Update,
	})
}

// trackActivity records a fetch entering flight and forgets it once it
// completes or fails.
func (hub *broadcaster) trackActivity(activity event.FetchActivity) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	key := fmt.Sprintf("%s|%s", activity.ItemID, activity.Kind)
	if activity.Status == event.FETCHING {
		hub.inFlight[key] = activity
		return
	}

	delete(hub.inFlight, key)
}

// connectionPayload is the welcome snapshot handed to every newly connected
// activity socket client.
func (hub *broadcaster) connectionPayload() map[string]interface{} {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	active := make([]event.FetchActivity, 0, len(hub.inFlight))
	for _, activity := range hub.inFlight {
		active = append(active, activity)
	}

	return map[string]interface{}{"in_flight": active}
}
