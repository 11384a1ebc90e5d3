// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"sync"
	"time"

	"render-studio/internal/domain"
	"render-studio/internal/domain/model"
	"render-studio/internal/domain/ports/adapter"
	"render-studio/internal/domain/ports/repository"
)

// memRenderRepo is an in-memory RenderRepository keyed by (user, prediction).
type memRenderRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Render // key: userID + "/" + predictionID
}

var _ repository.RenderRepository = (*memRenderRepo)(nil)

func newMemRenderRepo() *memRenderRepo {
	return &memRenderRepo{rows: make(map[string]*model.Render)}
}

func (m *memRenderRepo) key(userID, predictionID string) string { return userID + "/" + predictionID }

func (m *memRenderRepo) Upsert(_ context.Context, _ repository.Tx, r *model.Render) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(r.UserID, r.PredictionID)
	if prev, ok := m.rows[k]; ok {
		// Mirror storage: a conflicting write keeps the stored row's id and
		// hands it back, and terminal never downgrades.
		r.ID = prev.ID
		if prev.Status.IsTerminal() && !r.Status.IsTerminal() {
			merged := *prev
			if merged.ImageURL == nil {
				merged.ImageURL = r.ImageURL
			}
			m.rows[k] = &merged
			return nil
		}
		cp := *r
		cp.ID = prev.ID
		cp.CreatedAt = prev.CreatedAt
		if cp.ImageURL == nil {
			cp.ImageURL = prev.ImageURL
		}
		m.rows[k] = &cp
		return nil
	}
	cp := *r
	m.rows[k] = &cp
	return nil
}

func (m *memRenderRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Render, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memRenderRepo) FindByPredictionID(_ context.Context, _ repository.Tx, userID, predictionID string) (*model.Render, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[m.key(userID, predictionID)]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memRenderRepo) ListByUser(_ context.Context, _ repository.Tx, userID string, limit, offset int) ([]*model.Render, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Render
	for _, r := range m.rows {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRenderRepo) ListStaleActive(_ context.Context, _ repository.Tx, cutoff time.Time, limit int) ([]*model.Render, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Render
	for _, r := range m.rows {
		if r.Active() && r.UpdatedAt.Before(cutoff) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRenderRepo) Delete(_ context.Context, _ repository.Tx, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, r := range m.rows {
		if r.ID == id && r.UserID == userID {
			delete(m.rows, k)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memRenderRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type mockProvider struct {
	nameFn   func() string
	createFn func(ctx context.Context, in adapter.PredictionInput) (*adapter.PredictionSnapshot, error)
	getFn    func(ctx context.Context, id string) (*adapter.PredictionSnapshot, error)
}

var _ adapter.InferenceProvider = (*mockProvider)(nil)

func (m *mockProvider) Name() string {
	if m.nameFn != nil {
		return m.nameFn()
	}
	return "mock"
}

func (m *mockProvider) CreatePrediction(ctx context.Context, in adapter.PredictionInput) (*adapter.PredictionSnapshot, error) {
	return m.createFn(ctx, in)
}

func (m *mockProvider) GetPrediction(ctx context.Context, id string) (*adapter.PredictionSnapshot, error) {
	return m.getFn(ctx, id)
}

type mockChecker struct {
	checkFn func(ctx context.Context, imageURL string) error
}

func (m *mockChecker) Check(ctx context.Context, imageURL string) error {
	if m.checkFn != nil {
		return m.checkFn(ctx, imageURL)
	}
	return nil
}

type mockLimiter struct {
	allowFn func(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if m.allowFn != nil {
		return m.allowFn(ctx, key, limit, window)
	}
	return true, nil
}

type mockPublisher struct {
	mu      sync.Mutex
	inserts []*model.Render
	updates []model.RenderChange
}

func (m *mockPublisher) PublishInsert(_ context.Context, row *model.Render) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts = append(m.inserts, row)
}

func (m *mockPublisher) PublishUpdate(_ context.Context, before, after *model.Render) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, model.RenderChange{Before: before, After: after})
}
