// File: internal/infra/worker/worker_test.go
package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"render-studio/internal/domain/model"
	"render-studio/internal/usecase"

	"github.com/rs/zerolog"
)

type mockRenderUC struct {
	usecase.RenderUseCase
	trackFn func(ctx context.Context, userID, predictionID string) (*usecase.TrackResult, error)
}

func (m *mockRenderUC) Track(ctx context.Context, userID, predictionID string) (*usecase.TrackResult, error) {
	return m.trackFn(ctx, userID, predictionID)
}

func TestPool(t *testing.T) {
	log := zerolog.Nop()

	t.Run("runs submitted tasks", func(t *testing.T) {
		p := NewPool(2, &log)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p.Start(ctx)
		defer p.Stop()

		var wg sync.WaitGroup
		var mu sync.Mutex
		ran := 0
		for i := 0; i < 5; i++ {
			wg.Add(1)
			if err := p.Submit(func(context.Context) error {
				defer wg.Done()
				mu.Lock()
				ran++
				mu.Unlock()
				return nil
			}); err != nil {
				t.Fatalf("Submit: %v", err)
			}
		}
		wg.Wait()
		mu.Lock()
		defer mu.Unlock()
		if ran != 5 {
			t.Fatalf("expected 5 tasks run, got %d", ran)
		}
	})

	t.Run("nil task rejected", func(t *testing.T) {
		p := NewPool(1, &log)
		if err := p.Submit(nil); err == nil {
			t.Fatal("expected error for nil task")
		}
	})

	t.Run("saturated queue drops with ErrQueueFull", func(t *testing.T) {
		// Pool never started, so the queue only drains into its buffer.
		p := NewPool(1, &log)
		task := func(context.Context) error { return nil }
		var lastErr error
		for i := 0; i < 10; i++ {
			lastErr = p.Submit(task)
		}
		if lastErr != ErrQueueFull {
			t.Fatalf("expected ErrQueueFull, got %v", lastErr)
		}
	})
}

func TestTracker_EnqueueTrack(t *testing.T) {
	log := zerolog.Nop()

	newRender := func(status model.RenderStatus) *model.Render {
		r, err := model.NewRender("user-1", "pred-1", "generate", "a prompt", "", status)
		if err != nil {
			t.Fatalf("NewRender: %v", err)
		}
		return r
	}

	t.Run("tracks until terminal", func(t *testing.T) {
		done := newRender(model.RenderStatusSucceeded)
		trackCh := make(chan string, 1)
		uc := &mockRenderUC{trackFn: func(_ context.Context, _, predictionID string) (*usecase.TrackResult, error) {
			trackCh <- predictionID
			return &usecase.TrackResult{Render: done}, nil
		}}

		p := NewPool(1, &log)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p.Start(ctx)
		defer p.Stop()

		tr := NewTracker(p, uc, &log)
		if err := tr.EnqueueTrack("user-1", "pred-1"); err != nil {
			t.Fatalf("EnqueueTrack: %v", err)
		}

		select {
		case got := <-trackCh:
			if got != "pred-1" {
				t.Fatalf("tracked wrong prediction %q", got)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("track task never ran")
		}
	})

	t.Run("soft timeout is not an error", func(t *testing.T) {
		running := newRender(model.RenderStatusProcessing)
		done := make(chan struct{}, 1)
		uc := &mockRenderUC{trackFn: func(context.Context, string, string) (*usecase.TrackResult, error) {
			done <- struct{}{}
			return &usecase.TrackResult{Render: running, TimedOut: true}, nil
		}}

		p := NewPool(1, &log)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p.Start(ctx)
		defer p.Stop()

		tr := NewTracker(p, uc, &log)
		if err := tr.EnqueueTrack("user-1", "pred-1"); err != nil {
			t.Fatalf("EnqueueTrack: %v", err)
		}
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("track task never ran")
		}
	})
}
