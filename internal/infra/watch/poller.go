// File: internal/infra/watch/poller.go
package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"render-studio/internal/domain"
	"render-studio/internal/domain/model"
	"render-studio/internal/domain/ports/repository"
	ports "render-studio/internal/domain/ports/watch"
	"render-studio/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ ports.Watcher = (*Poller)(nil)

const (
	cadenceActive = "active"
	cadenceIdle   = "idle"
	cadenceError  = "error"
)

// Poller reconciles an owner's render list against storage. It fetches a
// snapshot, diffs it against the previous one and reports inserts and
// updates through the handlers. The next fetch is scheduled adaptively:
// fast while any render is active, slow when the list is settled, and
// backed off after a fetch error.
type Poller struct {
	renders repository.RenderRepository

	activeEvery time.Duration
	idleEvery   time.Duration
	errorEvery  time.Duration
	pageSize    int

	log *zerolog.Logger
}

func NewPoller(renders repository.RenderRepository, activeEvery, idleEvery, errorEvery time.Duration, pageSize int, log *zerolog.Logger) *Poller {
	if activeEvery <= 0 {
		activeEvery = 2500 * time.Millisecond
	}
	if idleEvery <= 0 {
		idleEvery = 10 * time.Second
	}
	if errorEvery <= 0 {
		errorEvery = 12 * time.Second
	}
	if pageSize <= 0 {
		pageSize = 18
	}
	return &Poller{
		renders:     renders,
		activeEvery: activeEvery,
		idleEvery:   idleEvery,
		errorEvery:  errorEvery,
		pageSize:    pageSize,
		log:         log,
	}
}

// Watch starts the reconciliation loop for one owner. The first snapshot is
// fetched immediately and seeds the baseline without dispatching, so a
// session opened over pre-existing rows stays silent; only rows that appear
// or change afterwards are reported. The returned stop function is
// idempotent; once it returns no further handler calls are made.
func (p *Poller) Watch(ctx context.Context, userID string, h ports.Handlers) (ports.StopFunc, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", domain.ErrInvalidArgument)
	}

	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	go p.loop(ctx, userID, h, done)

	return stop, nil
}

func (p *Poller) loop(ctx context.Context, userID string, h ports.Handlers, done <-chan struct{}) {
	var prev []*model.Render
	seeded := false
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-timer.C:
		}

		next, err := p.renders.ListByUser(ctx, nil, userID, p.pageSize, 0)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Warn().Err(err).Str("user_id", userID).Msg("watch: snapshot fetch failed")
			metrics.IncSnapshot(cadenceError)
			timer.Reset(p.errorEvery)
			continue
		}

		// The stop function may have fired while the fetch was in flight.
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		default:
		}

		if seeded {
			p.dispatch(model.DiffRenders(prev, next), h)
		}
		prev = next
		seeded = true

		cadence := cadenceIdle
		wait := p.idleEvery
		if model.HasActiveRenders(next) {
			cadence = cadenceActive
			wait = p.activeEvery
		}
		metrics.IncSnapshot(cadence)
		timer.Reset(wait)
	}
}

func (p *Poller) dispatch(diff model.Diff, h ports.Handlers) {
	if h.OnInsert != nil {
		for _, row := range diff.Inserted {
			h.OnInsert(row)
		}
	}
	if h.OnUpdate != nil {
		for _, ch := range diff.Updated {
			h.OnUpdate(ch.Before, ch.After)
		}
	}
}
