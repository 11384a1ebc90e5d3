package replicate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"render-studio/internal/domain"
	"render-studio/internal/domain/model"
	"render-studio/internal/domain/ports/adapter"

	"github.com/google/uuid"
)

var _ adapter.InferenceProvider = (*NoopProvider)(nil)

// NoopProvider implements adapter.InferenceProvider for local/dev runs. Jobs
// advance starting -> processing -> succeeded on a timer instead of calling
// a real service.
type NoopProvider struct {
	mu   sync.Mutex
	jobs map[string]time.Time
}

func NewNoopProvider() *NoopProvider {
	return &NoopProvider{jobs: make(map[string]time.Time)}
}

func (p *NoopProvider) Name() string { return "noop" }

func (p *NoopProvider) CreatePrediction(ctx context.Context, in adapter.PredictionInput) (*adapter.PredictionSnapshot, error) {
	id := "noop-" + uuid.NewString()
	p.mu.Lock()
	p.jobs[id] = time.Now()
	p.mu.Unlock()
	return &adapter.PredictionSnapshot{ID: id, Status: model.RenderStatusStarting}, nil
}

func (p *NoopProvider) GetPrediction(ctx context.Context, id string) (*adapter.PredictionSnapshot, error) {
	p.mu.Lock()
	started, ok := p.jobs[id]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: prediction %s", domain.ErrNotFound, id)
	}
	elapsed := time.Since(started)
	switch {
	case elapsed < 2*time.Second:
		return &adapter.PredictionSnapshot{ID: id, Status: model.RenderStatusStarting}, nil
	case elapsed < 6*time.Second:
		return &adapter.PredictionSnapshot{ID: id, Status: model.RenderStatusProcessing}, nil
	default:
		url := fmt.Sprintf("https://example.invalid/renders/%s.png", id)
		return &adapter.PredictionSnapshot{ID: id, Status: model.RenderStatusSucceeded, ImageURL: &url}, nil
	}
}
