package client

import "time"

// EventType represents different types of client events
type EventType string

const (
	EventTypeRegistered   EventType = "registered"
	EventTypePushed       EventType = "pushed"
	EventTypePushFailed   EventType = "push_failed"
	EventTypeStreamOpened EventType = "stream_opened"
	EventTypeStreamClosed EventType = "stream_closed"
	EventTypePatchApplied EventType = "patch_applied"
	EventTypeFrameDropped EventType = "frame_dropped"
	EventTypeApplyFailed  EventType = "apply_failed"
	EventTypeResynced     EventType = "resynced"
)

// Event represents a client event
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]interface{}
	Error     error
}

// EventHandler is called synchronously for every event. It must not block.
type EventHandler func(event Event)

// OnEvent registers handler for every later event.
func (c *Client) OnEvent(handler EventHandler) {
	c.handlerMutex.Lock()
	defer c.handlerMutex.Unlock()
	c.eventHandlers = append(c.eventHandlers, handler)
}

func (c *Client) emitEvent(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	c.handlerMutex.RLock()
	handlers := make([]EventHandler, len(c.eventHandlers))
	copy(handlers, c.eventHandlers)
	c.handlerMutex.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
