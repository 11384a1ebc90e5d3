// File: internal/infra/notify/sink.go

// Package notify turns render change events into short-lived user
// notifications. The sink is an in-memory, self-expiring buffer the web
// layer drains; entries carry ULID ids so insertion order is recoverable.
package notify

import (
	"sort"
	"sync"
	"time"

	"render-studio/internal/domain/model"

	"github.com/oklog/ulid/v2"
)

// DefaultTTL is how long a notification stays visible before it expires.
const DefaultTTL = 4500 * time.Millisecond

type Kind string

const (
	KindStarted   Kind = "started"
	KindCompleted Kind = "completed"
	KindEnded     Kind = "ended"
)

type Notification struct {
	ID        string
	UserID    string
	Kind      Kind
	RenderID  string
	Status    model.RenderStatus
	Message   string
	ImageURL  *string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Sink buffers notifications per process, scoped to their owner on every
// read and dismissal. Expired entries are pruned lazily on every access.
type Sink struct {
	mu    sync.Mutex
	items map[string]Notification
	ttl   time.Duration
	now   func() time.Time
}

func NewSink(ttl time.Duration) *Sink {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Sink{
		items: make(map[string]Notification),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Push stores the notification and returns its id. A missing id is assigned;
// a missing expiry defaults to the sink TTL.
func (s *Sink) Push(n Notification) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if n.ID == "" {
		n.ID = ulid.Make().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.ExpiresAt.IsZero() {
		n.ExpiresAt = n.CreatedAt.Add(s.ttl)
	}
	s.pruneLocked(now)
	s.items[n.ID] = n
	return n.ID
}

// Items returns the user's live notifications ordered by id, which for
// ULIDs is creation order. Other users' entries are never visible.
func (s *Sink) Items(userID string) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(s.now())
	out := make([]Notification, 0, len(s.items))
	for _, n := range s.items {
		if n.UserID != userID {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Dismiss drops the notification before its TTL elapses. Only the owner can
// dismiss; anyone else's call is a no-op.
func (s *Sink) Dismiss(userID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.items[id]; ok && n.UserID == userID {
		delete(s.items, id)
	}
}

func (s *Sink) pruneLocked(now time.Time) {
	for id, n := range s.items {
		if !now.Before(n.ExpiresAt) {
			delete(s.items, id)
		}
	}
}
