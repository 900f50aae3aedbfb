package core

import (
	"log/slog"
	"sync"
)

// EventSink receives events destined for one connected session.
type EventSink interface {
	// Send delivers e without blocking. It reports false when the sink is
	// saturated and the event was dropped.
	Send(e *Event) bool
}

// RoomRegistry maps room names to the sessions joined to them. Join and
// Leave are idempotent: joining twice is a single membership, leaving a room
// the session is not in is a no-op. Broadcast delivers to every member of
// the room, including the dispatching session when it is a member, which is
// what gives a sender its self-echo.
type RoomRegistry struct {
	mu sync.RWMutex
	// sessions holds the sink for every registered session.
	sessions map[string]EventSink
	// rooms maps a room name to the set of session ids joined to it.
	rooms map[string]map[string]struct{}
	// joined is the reverse relation, used to clean up on deregister.
	joined map[string]map[string]struct{}

	logger *slog.Logger
	// onSaturated is called, outside the registry lock, for sessions whose
	// sink rejected a broadcast.
	onSaturated func(sessionID string)
}

type RegistryOption func(*RoomRegistry)

func WithSaturationHandler(f func(sessionID string)) RegistryOption {
	return func(r *RoomRegistry) {
		r.onSaturated = f
	}
}

func NewRoomRegistry(logger *slog.Logger, opts ...RegistryOption) *RoomRegistry {
	r := &RoomRegistry{
		sessions:    make(map[string]EventSink),
		rooms:       make(map[string]map[string]struct{}),
		joined:      make(map[string]map[string]struct{}),
		logger:      logger,
		onSaturated: func(string) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register makes the session reachable by Broadcast once it joins rooms.
func (r *RoomRegistry) Register(sessionID string, sink EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = sink
	if _, ok := r.joined[sessionID]; !ok {
		r.joined[sessionID] = make(map[string]struct{})
	}
}

// Deregister removes the session from every room it joined and drops its sink.
func (r *RoomRegistry) Deregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.joined[sessionID] {
		delete(r.rooms[room], sessionID)
		if len(r.rooms[room]) == 0 {
			delete(r.rooms, room)
		}
	}
	delete(r.joined, sessionID)
	delete(r.sessions, sessionID)
}

// Join adds the session to the room's membership set.
func (r *RoomRegistry) Join(sessionID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		r.logger.Debug("join from unregistered session", slog.String("session", sessionID), slog.String("room", room))
		return
	}
	if _, ok := r.rooms[room]; !ok {
		r.rooms[room] = make(map[string]struct{})
	}
	r.rooms[room][sessionID] = struct{}{}
	r.joined[sessionID][room] = struct{}{}
}

// Leave removes the session from the room's membership set.
func (r *RoomRegistry) Leave(sessionID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.rooms[room]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if rooms, ok := r.joined[sessionID]; ok {
		delete(rooms, room)
	}
}

// Broadcast delivers e to every session currently joined to the room.
func (r *RoomRegistry) Broadcast(room string, e *Event) {
	var saturated []string
	r.mu.RLock()
	for sessionID := range r.rooms[room] {
		sink, ok := r.sessions[sessionID]
		if !ok {
			continue
		}
		if !sink.Send(e) {
			saturated = append(saturated, sessionID)
		}
	}
	r.mu.RUnlock()
	for _, sessionID := range saturated {
		r.logger.Error("dropping saturated session", slog.String("session", sessionID))
		r.onSaturated(sessionID)
	}
}

// MemberCount returns the number of sessions joined to the room.
func (r *RoomRegistry) MemberCount(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}
