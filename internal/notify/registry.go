package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/events"
)

// Subscription is one live status stream.
type Subscription struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	ExpiresAt time.Time

	sink      events.Sink
	lastKnown map[uuid.UUID]domain.TaskStatus
	done      chan struct{}
	closeOnce sync.Once
}

// Done is closed when the subscription is removed from its registry.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Registry holds the live subscriptions. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscription
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[uuid.UUID]*Subscription)}
}

func (r *Registry) add(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.ID] = sub
}

// Remove deletes the subscription and closes its Done channel. It reports
// whether the subscription was present.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	sub, ok := r.subs[id]
	delete(r.subs, id)
	r.mu.Unlock()

	if ok {
		sub.close()
	}
	return ok
}

// Get returns the subscription with the given ID.
func (r *Registry) Get(id uuid.UUID) (*Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[id]
	return sub, ok
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Registry) snapshot() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, sub)
	}
	return out
}

// CloseAll removes every subscription.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[uuid.UUID]*Subscription)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
