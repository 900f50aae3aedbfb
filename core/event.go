package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Realtime event names. These are part of the wire contract with the widget.
const (
	// JoinRoomEvent subscribes the dispatching session to a room.
	// The payload is the room name as a JSON string.
	JoinRoomEvent = "join_room"
	// LeaveRoomEvent unsubscribes the dispatching session from a room.
	LeaveRoomEvent = "leave_room"
	// ReceiveMessageEvent fans a persisted message out to a room.
	ReceiveMessageEvent = "receive_message"
	// ReceiveAnnouncementEvent fans a new announcement out to every
	// connected user.
	ReceiveAnnouncementEvent = "receive_announcement"
)

type Event struct {
	// Dispatcher is the id of the user whose session sent the event.
	Dispatcher ID `json:"-"`
	// Session is the id of the dispatching connection.
	Session string          `json:"-"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (e Event) String() string {
	return fmt.Sprintf("Event{Dispatcher: %s, Type: %s, Payload.Size: %d}", e.Dispatcher, e.Type, len(e.Payload))
}

func EncodeEvent(w io.Writer, e *Event) error {
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

func DecodeEvent(r io.Reader, e *Event) error {
	if err := json.NewDecoder(r).Decode(e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return nil
}

// NewEvent marshals payload into an event of the given type.
func NewEvent(t string, payload interface{}) (*Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return &Event{Type: t, Payload: b}, nil
}

// EventTransport delivers events to connected sessions and surfaces inbound
// events from them.
type EventTransport interface {
	SendToRoom(e *Event, room string)
	SendToUsers(e *Event, users ...ID)
	Receive() <-chan *Event
}

type EventHandler func(context.Context, *Event) error

// EventRouter dispatches inbound transport events to per-type handlers.
type EventRouter struct {
	listeners map[string]EventHandler
	ctx       context.Context
	transport EventTransport
	logger    *slog.Logger
	wg        sync.WaitGroup
}

func NewEventRouter(ctx context.Context, logger *slog.Logger, transport EventTransport) *EventRouter {
	return &EventRouter{
		listeners: make(map[string]EventHandler),
		ctx:       ctx,
		transport: transport,
		logger:    logger,
	}
}

// On registers the handler for an event type. Registering a type twice
// replaces the previous handler.
func (em *EventRouter) On(eventName string, handler EventHandler) {
	em.listeners[eventName] = handler
}

// Listen starts consuming inbound events. Handlers for distinct events run
// concurrently; registration must be complete before Listen is called.
func (em *EventRouter) Listen() {
	em.wg.Add(1)
	go func() {
		defer em.wg.Done()
		for {
			select {
			case e, ok := <-em.transport.Receive():
				if !ok {
					return
				}
				em.logger.Debug(fmt.Sprintf("received: %v", e))
				handler, ok := em.listeners[e.Type]
				if !ok {
					em.logger.Error(fmt.Sprintf("no handler for %s", e.Type))
					continue
				}
				go func() {
					if err := handler(em.ctx, e); err != nil {
						em.logger.Error(fmt.Sprintf("%s handler: %s", e.Type, err))
					}
				}()
			case <-em.ctx.Done():
				return
			}
		}
	}()
}

// Close waits for the listen loop to exit or the context to expire.
func (em *EventRouter) Close(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		em.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// EmitToRoom sends an event to every session joined to the given rooms.
func (em *EventRouter) EmitToRoom(t string, payload interface{}, rooms ...string) error {
	e, err := NewEvent(t, payload)
	if err != nil {
		return err
	}
	for _, room := range rooms {
		em.transport.SendToRoom(e, room)
	}
	return nil
}

// EmitTo sends an event to every connection of the given users.
func (em *EventRouter) EmitTo(t string, payload interface{}, users ...ID) error {
	e, err := NewEvent(t, payload)
	if err != nil {
		return err
	}
	em.transport.SendToUsers(e, users...)
	return nil
}
