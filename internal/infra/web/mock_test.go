// File: internal/infra/web/mock_test.go
package web

import (
	"context"

	"render-studio/internal/domain/model"
	"render-studio/internal/usecase"
)

type mockRenderUC struct {
	submitFn func(ctx context.Context, userID string, in usecase.SubmitInput) (*model.Render, error)
	pollFn   func(ctx context.Context, userID, predictionID string) (*model.Render, error)
	trackFn  func(ctx context.Context, userID, predictionID string) (*usecase.TrackResult, error)
	listFn   func(ctx context.Context, userID string, limit, offset int) ([]*model.Render, error)
	deleteFn func(ctx context.Context, userID, renderID string) error
}

var _ usecase.RenderUseCase = (*mockRenderUC)(nil)

func (m *mockRenderUC) Submit(ctx context.Context, userID string, in usecase.SubmitInput) (*model.Render, error) {
	return m.submitFn(ctx, userID, in)
}

func (m *mockRenderUC) Poll(ctx context.Context, userID, predictionID string) (*model.Render, error) {
	return m.pollFn(ctx, userID, predictionID)
}

func (m *mockRenderUC) Track(ctx context.Context, userID, predictionID string) (*usecase.TrackResult, error) {
	return m.trackFn(ctx, userID, predictionID)
}

func (m *mockRenderUC) List(ctx context.Context, userID string, limit, offset int) ([]*model.Render, error) {
	return m.listFn(ctx, userID, limit, offset)
}

func (m *mockRenderUC) Delete(ctx context.Context, userID, renderID string) error {
	return m.deleteFn(ctx, userID, renderID)
}

type mockTracker struct {
	enqueueFn func(userID, predictionID string) error
	calls     []string
}

func (m *mockTracker) EnqueueTrack(userID, predictionID string) error {
	m.calls = append(m.calls, predictionID)
	if m.enqueueFn != nil {
		return m.enqueueFn(userID, predictionID)
	}
	return nil
}
