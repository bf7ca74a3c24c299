package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/turnstile/pkg/domain"
)

// allEntities is the subscription key that receives every event.
const allEntities = "*"

// StreamEvent is the payload sent to SSE subscribers.
type StreamEvent struct {
	Type      domain.EventType `json:"type"`
	Kind      domain.Kind      `json:"kind"`
	EntityID  string           `json:"entity_id"`
	ActorID   string           `json:"actor_id"`
	From      domain.State     `json:"from"`
	To        domain.State     `json:"to"`
	Timestamp time.Time        `json:"timestamp"`
}

// StreamManager handles active SSE connections.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // entity ID or "*" -> channels
	closed      bool
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
	}
}

func (sm *StreamManager) Subscribe(key string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 16)
	if sm.closed {
		close(ch)
		return ch, func() {}
	}
	if _, ok := sm.subscribers[key]; !ok {
		sm.subscribers[key] = make(map[chan<- string]struct{})
	}
	sm.subscribers[key][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		subs := sm.subscribers[key]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(sm.subscribers, key)
		}
	}
}

// Close ends every open stream and refuses new ones. Register it with
// http.Server.RegisterOnShutdown so SSE clients do not hold up shutdown.
func (sm *StreamManager) Close() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.closed = true
	for key, subs := range sm.subscribers {
		for ch := range subs {
			close(ch)
		}
		delete(sm.subscribers, key)
	}
}

// Broadcast sends msg to the subscribers of entityID and of every entity.
func (sm *StreamManager) Broadcast(entityID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for _, key := range []string{entityID, allEntities} {
		for ch := range sm.subscribers[key] {
			select {
			case ch <- msg:
			default:
				// Drop message if channel is full (slow client)
				slog.Warn("SSE: client buffer full, dropping message", "key", key)
			}
		}
	}
}

// Hooks publishes applied transitions to subscribers.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) {
			b, err := json.Marshal(StreamEvent{
				Type: e.Type, Kind: e.Kind, EntityID: e.EntityID, ActorID: e.ActorID,
				From: e.From, To: e.To, Timestamp: e.Timestamp,
			})
			if err != nil {
				return
			}
			sm.Broadcast(e.EntityID, string(b))
		},
	}
}

// SubscribeEvents handles GET /events[?entity_id=...] (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	key := r.URL.Query().Get("entity_id")
	if key == "" {
		key = allEntities
	}
	ch, cancel := s.Streams.Subscribe(key)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: transition\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
