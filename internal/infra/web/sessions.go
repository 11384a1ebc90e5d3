// File: internal/infra/web/sessions.go
package web

import (
	"context"
	"sync"
	"time"

	"render-studio/internal/domain/ports/watch"
)

// watchIdleAfter is how long a user's watch session survives without an
// authenticated request before it is reaped. A reaped session restarts
// lazily on the next request, so the set of live sessions tracks the set of
// recently active users rather than every user ever seen.
const watchIdleAfter = 15 * time.Minute

type watchSession struct {
	stop     watch.StopFunc
	lastSeen time.Time
}

// watchRegistry keeps at most one reconciliation subscription per recently
// active user. Which strategy backs it (storage polling or the live change
// feed) is decided once at startup; never both.
type watchRegistry struct {
	mu        sync.Mutex
	ctx       context.Context
	watcher   watch.Watcher
	handler   watch.Handlers
	idleAfter time.Duration
	active    map[string]*watchSession
}

// EnableWatch turns on per-user change watching. Sessions start lazily on a
// user's first authenticated request, feed the given handlers, and expire
// after watchIdleAfter without traffic.
func (s *Server) EnableWatch(ctx context.Context, w watch.Watcher, h watch.Handlers) {
	s.watches = &watchRegistry{
		ctx:       ctx,
		watcher:   w,
		handler:   h,
		idleAfter: watchIdleAfter,
		active:    make(map[string]*watchSession),
	}
	go s.watches.janitor()
}

func (s *Server) ensureWatch(userID string) {
	r := s.watches
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.active[userID]; ok {
		sess.lastSeen = time.Now()
		return
	}
	stop, err := r.watcher.Watch(r.ctx, userID, r.handler)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("watch session failed to start")
		return
	}
	r.active[userID] = &watchSession{stop: stop, lastSeen: time.Now()}
}

// StopWatches cancels every live subscription. Safe to call more than once.
func (s *Server) StopWatches() {
	r := s.watches
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, sess := range r.active {
		sess.stop()
		delete(r.active, userID)
	}
}

func (r *watchRegistry) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.reapIdle(time.Now())
		}
	}
}

func (r *watchRegistry) reapIdle(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, sess := range r.active {
		if now.Sub(sess.lastSeen) >= r.idleAfter {
			sess.stop()
			delete(r.active, userID)
		}
	}
}
