// Package realtime fans stored audit events out to live subscribers.
//
// Delivery is best effort and at most once: nothing is replayed to late subscribers and a
// subscriber whose buffer is full loses the event instead of slowing the publisher down.
package realtime

import (
	"context"
	"sync"

	"inventory-audit/internal/domain"
	"inventory-audit/internal/metrics"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const defaultBufferSize = 64

type Hub struct {
	mu         sync.RWMutex
	subs       map[string]*Subscription
	bufferSize int
}

type HubOption func(*Hub)

// WithBufferSize sets how many undelivered events a subscriber may hold.
func WithBufferSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:       make(map[string]*Subscription),
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Subscription is a live feed from the hub. With no rooms joined it receives every event;
// otherwise only events belonging to at least one joined room.
type Subscription struct {
	id     string
	hub    *Hub
	events chan domain.AuditEvent

	mu    sync.RWMutex
	rooms map[string]struct{}

	closeOnce sync.Once
}

func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		id:     uuid.NewString(),
		hub:    h,
		events: make(chan domain.AuditEvent, h.bufferSize),
		rooms:  make(map[string]struct{}),
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()

	metrics.RealtimeSubscribers.Inc()
	return sub
}

// Publish never blocks. A full subscriber buffer drops the event for that subscriber only.
func (h *Hub) Publish(event domain.AuditEvent) {
	rooms := event.Rooms()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.wants(rooms) {
			continue
		}
		select {
		case sub.events <- event:
			metrics.RealtimeDelivered.Inc()
		default:
			metrics.RealtimeDropped.Inc()
			log.WithFields(log.Fields{
				"subscription_id": sub.id,
				"audit_id":        event.ID,
			}).Warn("Realtime subscriber is too slow, dropping audit event")
		}
	}
}

// Notify lets the hub act as an in-process audit notifier.
func (h *Hub) Notify(_ context.Context, event domain.AuditEvent) {
	h.Publish(event)
}

// Members counts subscriptions currently joined to room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, sub := range h.subs {
		if sub.InRoom(room) {
			n++
		}
	}
	return n
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub.id]; !ok {
		return
	}
	delete(h.subs, sub.id)
	// Publish sends under the read lock, so closing here cannot race a send.
	close(sub.events)
	metrics.RealtimeSubscribers.Dec()
}

func (s *Subscription) ID() string { return s.id }

// Events is closed once the subscription is closed.
func (s *Subscription) Events() <-chan domain.AuditEvent { return s.events }

func (s *Subscription) Join(room string) {
	if room == "" {
		return
	}
	s.mu.Lock()
	s.rooms[room] = struct{}{}
	s.mu.Unlock()
}

func (s *Subscription) Leave(room string) {
	s.mu.Lock()
	delete(s.rooms, room)
	s.mu.Unlock()
}

func (s *Subscription) InRoom(room string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[room]
	return ok
}

// Close releases the subscription and its room memberships. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.hub.remove(s)
		s.mu.Lock()
		s.rooms = make(map[string]struct{})
		s.mu.Unlock()
	})
}

func (s *Subscription) wants(eventRooms []string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.rooms) == 0 {
		return true
	}
	for _, room := range eventRooms {
		if _, ok := s.rooms[room]; ok {
			return true
		}
	}
	return false
}
