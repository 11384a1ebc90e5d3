// Package watch defines the contract shared by the two reconciliation
// strategies: the storage-polling reconciler and the live change feed. Both
// emit the same insert/update event shape so downstream consumers are
// agnostic to which one is active. Exactly one strategy runs per owner
// session.
package watch

import (
	"context"

	"render-studio/internal/domain/model"
)

// Handlers receive change events for a single owner's renders. OnUpdate's
// before may be nil when the feed could not recover the previous row state.
type Handlers struct {
	OnInsert func(row *model.Render)
	OnUpdate func(before, after *model.Render)
}

// StopFunc cancels a subscription. It is safe to call multiple times and
// after the underlying loop has already stopped.
type StopFunc func()

// Watcher is one reconciliation strategy for one owner.
type Watcher interface {
	Watch(ctx context.Context, userID string, h Handlers) (StopFunc, error)
}
