// Package ws carries the realtime side of the service: the room registry
// that fans events out to subscribers, and the connection supervisor that
// authenticates sockets and dispatches their frames.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/internal/service"
)

// Subscriber is the send side of one live connection.
type Subscriber interface {
	ID() string
	UserID() string
	// Enqueue offers an already-marshaled frame without blocking; false
	// means the subscriber's queue is full.
	Enqueue(frame []byte) bool
	// Terminate schedules the connection's shutdown.
	Terminate(code domain.Code)
}

// room holds one conversation's subscribers. broadcastMu serializes
// broadcasts so a conversation's frames keep their publish order; mu guards
// the set itself so join and leave never wait behind a delivery loop.
type room struct {
	broadcastMu sync.Mutex
	mu          sync.Mutex
	subs        map[string]Subscriber
}

// Registry routes events to per-conversation rooms. It satisfies the
// service layer's Publisher so commits fan out without the services knowing
// anything about sockets.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	logger zerolog.Logger
}

var _ service.Publisher = (*Registry)(nil)

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*room),
		logger: logger.With().Str("component", "ws").Logger(),
	}
}

// Join subscribes sub to a conversation's room, creating the room on first
// use. Re-joining is a no-op.
func (r *Registry) Join(conversationID string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[conversationID]
	if !ok {
		rm = &room{subs: make(map[string]Subscriber)}
		r.rooms[conversationID] = rm
		metrics.Rooms.Set(float64(len(r.rooms)))
	}
	rm.mu.Lock()
	rm.subs[sub.ID()] = sub
	rm.mu.Unlock()
}

// Leave unsubscribes sub from one room. Leaving a room it never joined is a
// no-op; emptied rooms are dropped from the map.
func (r *Registry) Leave(conversationID string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[conversationID]
	if !ok {
		return
	}
	rm.mu.Lock()
	delete(rm.subs, sub.ID())
	empty := len(rm.subs) == 0
	rm.mu.Unlock()
	if empty {
		delete(r.rooms, conversationID)
		metrics.Rooms.Set(float64(len(r.rooms)))
	}
}

// LeaveAll removes sub from every room. Idempotent; every disconnect path
// funnels through it.
func (r *Registry) LeaveAll(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rm := range r.rooms {
		rm.mu.Lock()
		delete(rm.subs, sub.ID())
		empty := len(rm.subs) == 0
		rm.mu.Unlock()
		if empty {
			delete(r.rooms, id)
		}
	}
	metrics.Rooms.Set(float64(len(r.rooms)))
}

// DetachUser drops every connection a user holds in one room, used when a
// participant is removed. The connections stay alive for their other rooms.
func (r *Registry) DetachUser(conversationID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[conversationID]
	if !ok {
		return
	}
	rm.mu.Lock()
	for id, s := range rm.subs {
		if s.UserID() == userID {
			delete(rm.subs, id)
		}
	}
	empty := len(rm.subs) == 0
	rm.mu.Unlock()
	if empty {
		delete(r.rooms, conversationID)
		metrics.Rooms.Set(float64(len(r.rooms)))
	}
}

// Broadcast sends event to every subscriber of the conversation.
func (r *Registry) Broadcast(conversationID string, event any) {
	r.broadcast(conversationID, "", event)
}

// BroadcastExcept sends event to every subscriber but one, so typing
// indicators skip their author.
func (r *Registry) BroadcastExcept(conversationID, exceptID string, event any) {
	r.broadcast(conversationID, exceptID, event)
}

func (r *Registry) broadcast(conversationID, exceptID string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Error().Err(err).
			Str("conversation_id", conversationID).
			Msg("marshal broadcast event")
		return
	}

	r.mu.RLock()
	rm := r.rooms[conversationID]
	r.mu.RUnlock()
	if rm == nil {
		return
	}

	rm.broadcastMu.Lock()
	rm.mu.Lock()
	subs := make([]Subscriber, 0, len(rm.subs))
	for id, s := range rm.subs {
		if id != exceptID {
			subs = append(subs, s)
		}
	}
	rm.mu.Unlock()

	// Enqueue never blocks, so holding broadcastMu across the loop only
	// serializes broadcasts, not socket writes.
	var slow []Subscriber
	for _, s := range subs {
		if s.Enqueue(payload) {
			metrics.BroadcastFrames.Inc()
		} else {
			slow = append(slow, s)
		}
	}
	rm.broadcastMu.Unlock()

	for _, s := range slow {
		metrics.SlowConsumerEvictions.Inc()
		r.logger.Warn().
			Str("conversation_id", conversationID).
			Str("user_id", s.UserID()).
			Msg("send queue full, evicting slow consumer")
		r.LeaveAll(s)
		s.Terminate(domain.CodeSlowConsumer)
	}
}
