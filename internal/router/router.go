package router

import (
	"context"
	"encoding/json"
	"sync"

	"safetrip/internal/general/logger"
)

// SendFunc delivers one marshaled event to a connection. The gateway supplies
// it at registration time; it must be safe for concurrent use (the gateway
// serializes writes with its per-connection lock).
type SendFunc func(payload []byte) error

// Router manages channel membership and fans published events out to member
// connections. Channel keys are opaque strings (user:<id>, ride:<id>,
// trip:<id>, region:<name>, grid:<cell>); the router never interprets them.
type Router struct {
	mu       sync.RWMutex
	members  map[string]map[string]struct{} // channel -> set of connection ids
	channels map[string]map[string]struct{} // connection id -> set of channels
	senders  map[string]SendFunc
	logger   *logger.Logger
}

// New creates an empty router.
func New(log *logger.Logger) *Router {
	return &Router{
		members:  make(map[string]map[string]struct{}),
		channels: make(map[string]map[string]struct{}),
		senders:  make(map[string]SendFunc),
		logger:   log,
	}
}

// Register installs the delivery function for a connection. Registering again
// under the same id replaces the previous sender.
func (r *Router) Register(connID string, send SendFunc) {
	r.mu.Lock()
	r.senders[connID] = send
	r.mu.Unlock()
}

// Join adds a connection to a channel. Joining twice is harmless.
func (r *Router) Join(connID, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[channel]
	if !ok {
		set = make(map[string]struct{})
		r.members[channel] = set
	}
	set[connID] = struct{}{}

	owned, ok := r.channels[connID]
	if !ok {
		owned = make(map[string]struct{})
		r.channels[connID] = owned
	}
	owned[channel] = struct{}{}
}

// Leave removes a connection from a channel.
func (r *Router) Leave(connID, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, channel)
}

func (r *Router) leaveLocked(connID, channel string) {
	if set, ok := r.members[channel]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.members, channel)
		}
	}
	if owned, ok := r.channels[connID]; ok {
		delete(owned, channel)
		if len(owned) == 0 {
			delete(r.channels, connID)
		}
	}
}

// LeaveAll removes the connection from every channel and forgets its sender.
// Called once per connection teardown; calling twice is harmless.
func (r *Router) LeaveAll(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for channel := range r.channels[connID] {
		r.leaveLocked(connID, channel)
	}
	delete(r.channels, connID)
	delete(r.senders, connID)
}

// Members returns the connection ids currently joined to a channel.
func (r *Router) Members(channel string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.members[channel]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Publish marshals event once and delivers it to every member of the channel.
// Publishing to an empty channel is a no-op. Returns the delivered count.
func (r *Router) Publish(channel string, event any) int {
	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Error(context.Background(), "publish_marshal_failed", "Failed to marshal event for channel", err, map[string]any{
			"channel": channel,
		})
		return 0
	}
	return r.PublishRaw(channel, payload)
}

// PublishRaw delivers a pre-marshaled payload to every member of the channel.
func (r *Router) PublishRaw(channel string, payload []byte) int {
	r.mu.RLock()
	set := r.members[channel]
	targets := make([]SendFunc, 0, len(set))
	for id := range set {
		if send, ok := r.senders[id]; ok {
			targets = append(targets, send)
		}
	}
	r.mu.RUnlock()

	// deliver outside the lock; a slow socket must not block joins
	delivered := 0
	for _, send := range targets {
		if err := send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// PublishExcept behaves like Publish but skips one connection id, used to
// avoid echoing a user's own report back through a shared channel.
func (r *Router) PublishExcept(channel, exceptConnID string, event any) int {
	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Error(context.Background(), "publish_marshal_failed", "Failed to marshal event for channel", err, map[string]any{
			"channel": channel,
		})
		return 0
	}

	r.mu.RLock()
	set := r.members[channel]
	targets := make([]SendFunc, 0, len(set))
	for id := range set {
		if id == exceptConnID {
			continue
		}
		if send, ok := r.senders[id]; ok {
			targets = append(targets, send)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, send := range targets {
		if err := send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}
