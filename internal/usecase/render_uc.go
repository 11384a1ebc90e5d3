// File: internal/usecase/render_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"render-studio/internal/domain"
	"render-studio/internal/domain/model"
	"render-studio/internal/domain/ports/adapter"
	"render-studio/internal/domain/ports/repository"
	"render-studio/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ RenderUseCase = (*renderUC)(nil)

// SubmitInput carries one generation request. Image must be a publicly
// fetchable image URL; Prompt must be non-empty.
type SubmitInput struct {
	RenderType        string
	Image             string
	Prompt            string
	NegativePrompt    string
	GuidanceScale     float64
	PromptStrength    float64
	NumInferenceSteps int
	Seed              *int64
}

// TrackResult is the outcome of one tracking loop. TimedOut means the
// polling budget elapsed before a terminal status was observed; the job is
// still running and stays visible through list reconciliation. It is not an
// error.
type TrackResult struct {
	Render   *model.Render
	TimedOut bool
}

// ChangePublisher mirrors observable record changes onto the live change
// feed. A nil-safe no-op implementation is used when the feed is disabled.
type ChangePublisher interface {
	PublishInsert(ctx context.Context, row *model.Render)
	PublishUpdate(ctx context.Context, before, after *model.Render)
}

type RenderUseCase interface {
	// Submit validates the request, starts a provider job and records the
	// placeholder render. Nothing is persisted when validation or the
	// provider call fails.
	Submit(ctx context.Context, userID string, in SubmitInput) (*model.Render, error)
	// Poll observes the provider-side job once and merges the observation
	// into storage, creating the record if it is missing (self-healing).
	Poll(ctx context.Context, userID, predictionID string) (*model.Render, error)
	// Track polls sequentially until a terminal status or the polling budget
	// elapses. Budget expiry is a soft timeout, reported via TrackResult.
	Track(ctx context.Context, userID, predictionID string) (*TrackResult, error)
	List(ctx context.Context, userID string, limit, offset int) ([]*model.Render, error)
	// Delete removes the render, authorized only for the owning user.
	Delete(ctx context.Context, userID, renderID string) error
}

type renderUC struct {
	renders  repository.RenderRepository
	provider adapter.InferenceProvider
	checker  ImageChecker
	limiter  adapter.RateLimiter
	feed     ChangePublisher

	rateLimit    int
	rateWindow   time.Duration
	pollBudget   time.Duration
	pollInterval time.Duration

	log *zerolog.Logger
}

type RenderUCOptions struct {
	RateLimit    int
	RateWindow   time.Duration
	PollBudget   time.Duration
	PollInterval time.Duration
}

func NewRenderUseCase(
	renders repository.RenderRepository,
	provider adapter.InferenceProvider,
	checker ImageChecker,
	limiter adapter.RateLimiter,
	feed ChangePublisher,
	opts RenderUCOptions,
	log *zerolog.Logger,
) *renderUC {
	if opts.PollBudget <= 0 {
		opts.PollBudget = time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}
	if feed == nil {
		feed = noopPublisher{}
	}
	return &renderUC{
		renders:      renders,
		provider:     provider,
		checker:      checker,
		limiter:      limiter,
		feed:         feed,
		rateLimit:    opts.RateLimit,
		rateWindow:   opts.RateWindow,
		pollBudget:   opts.PollBudget,
		pollInterval: opts.PollInterval,
		log:          log,
	}
}

func (u *renderUC) Submit(ctx context.Context, userID string, in SubmitInput) (*model.Render, error) {
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is empty", domain.ErrInvalidArgument)
	}

	if u.limiter != nil && u.rateLimit > 0 {
		ok, err := u.limiter.Allow(ctx, "rate_limit:"+userID+":submit", u.rateLimit, u.rateWindow)
		if err != nil {
			// A broken limiter must not block submissions; log and continue.
			u.log.Warn().Err(err).Str("user_id", userID).Msg("rate limiter unavailable")
		} else if !ok {
			return nil, domain.ErrRateLimited
		}
	}

	// Reject unreachable references before contacting the provider so a
	// failed submission never leaves an orphan record.
	if err := u.checker.Check(ctx, in.Image); err != nil {
		return nil, err
	}

	snap, err := u.provider.CreatePrediction(ctx, adapter.PredictionInput{
		Image:             in.Image,
		Prompt:            in.Prompt,
		NegativePrompt:    in.NegativePrompt,
		GuidanceScale:     in.GuidanceScale,
		PromptStrength:    in.PromptStrength,
		NumInferenceSteps: in.NumInferenceSteps,
		Seed:              in.Seed,
	})
	if err != nil {
		metrics.IncSubmission("provider_error")
		return nil, fmt.Errorf("submit render: %w", err)
	}
	if snap.ID == "" {
		metrics.IncSubmission("provider_error")
		return nil, fmt.Errorf("%w: provider returned no prediction id", domain.ErrOperationFailed)
	}

	rec, err := model.NewRender(userID, snap.ID, in.RenderType, in.Prompt, in.Image, snap.Status)
	if err != nil {
		return nil, err
	}
	if err := u.renders.Upsert(ctx, nil, rec); err != nil {
		return nil, err
	}
	metrics.IncSubmission("accepted")
	u.feed.PublishInsert(ctx, rec)

	u.log.Info().Str("user_id", userID).Str("prediction_id", rec.PredictionID).
		Str("status", string(rec.Status)).Msg("render submitted")
	return rec, nil
}

// Poll persists the observation unconditionally so that even a client that
// never re-opens a result page leaves an up-to-date record behind.
func (u *renderUC) Poll(ctx context.Context, userID, predictionID string) (*model.Render, error) {
	start := time.Now()
	snap, err := u.provider.GetPrediction(ctx, predictionID)
	metrics.ObservePoll(time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("poll render: %w", err)
	}

	before, err := u.renders.FindByPredictionID(ctx, nil, userID, predictionID)
	if err != nil && err != domain.ErrNotFound {
		return nil, err
	}

	var rec *model.Render
	if before == nil {
		// Self-healing: a poll for an identifier we have no record of still
		// writes one.
		rec, err = model.NewRender(userID, predictionID, "", "(recovered)", "", snap.Status)
		if err != nil {
			return nil, err
		}
		rec.ApplyStatus(snap.Status, snap.ImageURL, snap.Error)
	} else {
		cp := *before
		rec = &cp
		rec.ApplyStatus(snap.Status, snap.ImageURL, snap.Error)
	}

	if err := u.renders.Upsert(ctx, nil, rec); err != nil {
		return nil, err
	}

	if before == nil {
		u.feed.PublishInsert(ctx, rec)
	} else if before.Status != rec.Status || !equalPtr(before.ImageURL, rec.ImageURL) {
		u.feed.PublishUpdate(ctx, before, rec)
	}
	return rec, nil
}

func (u *renderUC) Track(ctx context.Context, userID, predictionID string) (*TrackResult, error) {
	deadline := time.Now().Add(u.pollBudget)
	var last *model.Render

	for {
		rec, err := u.Poll(ctx, userID, predictionID)
		if err != nil {
			// Transport-level failures are retried by the transport layer;
			// anything surviving that is logged and retried on the next tick
			// rather than treated as job failure.
			u.log.Warn().Err(err).Str("prediction_id", predictionID).Msg("poll failed, will retry")
		} else {
			last = rec
			if rec.Status.IsTerminal() {
				return &TrackResult{Render: rec}, nil
			}
		}

		if time.Now().After(deadline) {
			// Soft timeout: the job keeps running provider-side and stays
			// visible through list reconciliation.
			u.log.Info().Str("prediction_id", predictionID).Msg("polling budget elapsed, handing over to reconciliation")
			return &TrackResult{Render: last, TimedOut: true}, nil
		}

		t := time.NewTimer(u.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (u *renderUC) List(ctx context.Context, userID string, limit, offset int) ([]*model.Render, error) {
	return u.renders.ListByUser(ctx, nil, userID, limit, offset)
}

func (u *renderUC) Delete(ctx context.Context, userID, renderID string) error {
	if renderID == "" {
		return fmt.Errorf("%w: render id is empty", domain.ErrInvalidArgument)
	}
	return u.renders.Delete(ctx, nil, userID, renderID)
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type noopPublisher struct{}

func (noopPublisher) PublishInsert(context.Context, *model.Render) {}

func (noopPublisher) PublishUpdate(context.Context, *model.Render, *model.Render) {}
