// File: internal/infra/worker/tracker.go
package worker

import (
	"context"

	"render-studio/internal/infra/metrics"
	"render-studio/internal/usecase"

	"github.com/rs/zerolog"
)

// Tracker schedules the server-side polling loop that follows a submission.
// Tracking starts immediately after the provider accepts the job, without
// waiting for any client to poll.
type Tracker struct {
	pool *Pool
	uc   usecase.RenderUseCase
	log  *zerolog.Logger
}

func NewTracker(pool *Pool, uc usecase.RenderUseCase, logger *zerolog.Logger) *Tracker {
	compLog := logger.With().Str("component", "Tracker").Logger()
	return &Tracker{pool: pool, uc: uc, log: &compLog}
}

// EnqueueTrack submits the tracking task for one render. A full queue is
// reported to the caller but is not fatal; the stale-render reconciler picks
// the job up later.
func (t *Tracker) EnqueueTrack(userID, predictionID string) error {
	return t.pool.Submit(func(ctx context.Context) error {
		res, err := t.uc.Track(ctx, userID, predictionID)
		if err != nil {
			return err
		}
		if res.TimedOut {
			t.log.Info().Str("prediction_id", predictionID).Msg("tracking budget elapsed")
			return nil
		}
		if res.Render != nil {
			metrics.IncFinished(string(res.Render.Status))
			t.log.Info().
				Str("prediction_id", predictionID).
				Str("status", string(res.Render.Status)).
				Msg("render finished")
		}
		return nil
	})
}
