// File: internal/infra/sched/render_reconciler.go

// Package sched holds background loops that keep storage converged with the
// provider even when no client is attached.
package sched

import (
	"context"
	"time"

	"render-studio/internal/domain/ports/repository"
	"render-studio/internal/usecase"

	"github.com/rs/zerolog"
)

// RenderReconciler periodically scans for active renders that have not been
// observed recently and polls the provider for each. This covers the cases
// where the submitting client went away mid-job or the process crashed
// before tracking finished.
type RenderReconciler struct {
	uc         usecase.RenderUseCase
	renders    repository.RenderRepository
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how long since the last observation before a render counts as stale
	batchSize  int

	log *zerolog.Logger
}

func NewRenderReconciler(uc usecase.RenderUseCase, renders repository.RenderRepository, interval, staleAfter time.Duration, logger *zerolog.Logger) *RenderReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	compLog := logger.With().Str("component", "RenderReconciler").Logger()
	return &RenderReconciler{
		uc:         uc,
		renders:    renders,
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  200,
		log:        &compLog,
	}
}

func (w *RenderReconciler) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("starting render reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping render reconciler")
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *RenderReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.renders.ListStaleActive(ctx, nil, cutoff, w.batchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale renders failed")
		return
	}
	for _, r := range stale {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.uc.Poll(ctx, r.UserID, r.PredictionID); err != nil {
			w.log.Warn().Err(err).
				Str("render_id", r.ID).
				Str("prediction_id", r.PredictionID).
				Msg("stale render poll failed")
			continue
		}
		w.log.Debug().Str("render_id", r.ID).Msg("stale render reconciled")
	}
}
