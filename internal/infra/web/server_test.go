// File: internal/infra/web/server_test.go
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"render-studio/internal/domain"
	"render-studio/internal/domain/model"
	"render-studio/internal/domain/ports/watch"
	"render-studio/internal/infra/notify"
	"render-studio/internal/usecase"

	"github.com/rs/zerolog"
)

const testSecret = "test-secret-0123456789"

func newTestServer(t *testing.T, uc usecase.RenderUseCase, tracker TrackScheduler) (*Server, *notify.Sink, *AuthManager) {
	t.Helper()
	log := zerolog.Nop()
	sink := notify.NewSink(time.Minute)
	auth := NewAuthManager(testSecret, false, "", time.Hour)
	if tracker == nil {
		tracker = &mockTracker{}
	}
	return NewServer(uc, tracker, sink, auth, &log), sink, auth
}

func bearerToken(t *testing.T, auth *AuthManager, userID string) string {
	t.Helper()
	rec := httptest.NewRecorder()
	tok, err := auth.Mint(rec, userID)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	return tok
}

func authedRequest(t *testing.T, auth *AuthManager, method, target string, body []byte) *http.Request {
	t.Helper()
	return authedRequestAs(t, auth, "user-1", method, target, body)
}

func authedRequestAs(t *testing.T, auth *AuthManager, userID, method, target string, body []byte) *http.Request {
	t.Helper()
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r.Header.Set("Authorization", "Bearer "+bearerToken(t, auth, userID))
	return r
}

func testRender(t *testing.T, status model.RenderStatus) *model.Render {
	t.Helper()
	r, err := model.NewRender("user-1", "pred-1", "generate", "a lighthouse", "https://img.example/s.jpg", status)
	if err != nil {
		t.Fatalf("NewRender: %v", err)
	}
	return r
}

func TestAuthMiddleware(t *testing.T) {
	uc := &mockRenderUC{listFn: func(_ context.Context, userID string, _, _ int) ([]*model.Render, error) {
		return nil, nil
	}}
	srv, _, auth := newTestServer(t, uc, nil)
	router := srv.Router()

	t.Run("missing token rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/renders", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/renders", nil)
		r.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, r)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("requests are scoped to the token subject", func(t *testing.T) {
		var gotUser string
		uc.listFn = func(_ context.Context, userID string, _, _ int) ([]*model.Render, error) {
			gotUser = userID
			return nil, nil
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(t, auth, http.MethodGet, "/api/v1/renders", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if gotUser != "user-1" {
			t.Fatalf("expected user-1, got %q", gotUser)
		}
	})

	t.Run("health stays open", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})
}

func TestHandleSubmit(t *testing.T) {
	body := []byte(`{"render_type":"generate","image":"https://img.example/s.jpg","prompt":"a lighthouse"}`)

	t.Run("accepted submission returns 201 and schedules tracking", func(t *testing.T) {
		uc := &mockRenderUC{submitFn: func(_ context.Context, userID string, in usecase.SubmitInput) (*model.Render, error) {
			if userID != "user-1" {
				t.Fatalf("wrong user %q", userID)
			}
			return testRender(t, model.RenderStatusStarting), nil
		}}
		tracker := &mockTracker{}
		srv, _, auth := newTestServer(t, uc, tracker)

		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, authedRequest(t, auth, http.MethodPost, "/api/v1/renders", body))

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp submitResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.ID != "pred-1" || resp.Status != "starting" || resp.Prompt != "a lighthouse" {
			t.Fatalf("unexpected response: %+v", resp)
		}
		if len(tracker.calls) != 1 || tracker.calls[0] != "pred-1" {
			t.Fatalf("expected tracking enqueued for pred-1, got %v", tracker.calls)
		}
	})

	t.Run("unreachable image maps to 422", func(t *testing.T) {
		uc := &mockRenderUC{submitFn: func(context.Context, string, usecase.SubmitInput) (*model.Render, error) {
			return nil, fmt.Errorf("check image: %w", domain.ErrUnreachableImage)
		}}
		srv, _, auth := newTestServer(t, uc, nil)

		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, authedRequest(t, auth, http.MethodPost, "/api/v1/renders", body))
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
	})

	t.Run("rate limit maps to 429", func(t *testing.T) {
		uc := &mockRenderUC{submitFn: func(context.Context, string, usecase.SubmitInput) (*model.Render, error) {
			return nil, fmt.Errorf("submit: %w", domain.ErrRateLimited)
		}}
		srv, _, auth := newTestServer(t, uc, nil)

		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, authedRequest(t, auth, http.MethodPost, "/api/v1/renders", body))
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
	})

	t.Run("provider failure maps to 502", func(t *testing.T) {
		uc := &mockRenderUC{submitFn: func(context.Context, string, usecase.SubmitInput) (*model.Render, error) {
			return nil, fmt.Errorf("create prediction: %w", domain.ErrOperationFailed)
		}}
		srv, _, auth := newTestServer(t, uc, nil)

		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, authedRequest(t, auth, http.MethodPost, "/api/v1/renders", body))
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", rec.Code)
		}
	})

	t.Run("malformed body maps to 400", func(t *testing.T) {
		uc := &mockRenderUC{}
		srv, _, auth := newTestServer(t, uc, nil)

		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, authedRequest(t, auth, http.MethodPost, "/api/v1/renders", []byte("{")))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestHandlePoll(t *testing.T) {
	t.Run("returns current status and artifact", func(t *testing.T) {
		done := testRender(t, model.RenderStatusSucceeded)
		url := "https://cdn.example/out.png"
		done.ImageURL = &url
		uc := &mockRenderUC{pollFn: func(_ context.Context, userID, predictionID string) (*model.Render, error) {
			if predictionID != "pred-1" {
				t.Fatalf("wrong prediction %q", predictionID)
			}
			return done, nil
		}}
		srv, _, auth := newTestServer(t, uc, nil)

		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, authedRequest(t, auth, http.MethodGet, "/api/v1/renders/pred-1", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp renderResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Status != "succeeded" || resp.ImageURL == nil || *resp.ImageURL != url {
			t.Fatalf("unexpected response: %+v", resp)
		}
	})

	t.Run("unknown prediction maps to 404", func(t *testing.T) {
		uc := &mockRenderUC{pollFn: func(context.Context, string, string) (*model.Render, error) {
			return nil, domain.ErrNotFound
		}}
		srv, _, auth := newTestServer(t, uc, nil)

		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, authedRequest(t, auth, http.MethodGet, "/api/v1/renders/missing", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestHandleList(t *testing.T) {
	var gotLimit, gotOffset int
	uc := &mockRenderUC{listFn: func(_ context.Context, _ string, limit, offset int) ([]*model.Render, error) {
		gotLimit, gotOffset = limit, offset
		return []*model.Render{testRender(t, model.RenderStatusProcessing)}, nil
	}}
	srv, _, auth := newTestServer(t, uc, nil)

	t.Run("defaults applied", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, authedRequest(t, auth, http.MethodGet, "/api/v1/renders?limit=0&offset=-3", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if gotLimit != 18 || gotOffset != 0 {
			t.Fatalf("expected defaults 18/0, got %d/%d", gotLimit, gotOffset)
		}
		var resp []renderResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp) != 1 || resp[0].Status != "processing" {
			t.Fatalf("unexpected list: %+v", resp)
		}
	})

	t.Run("explicit paging forwarded", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, authedRequest(t, auth, http.MethodGet, "/api/v1/renders?limit=5&offset=10", nil))
		if gotLimit != 5 || gotOffset != 10 {
			t.Fatalf("expected 5/10, got %d/%d", gotLimit, gotOffset)
		}
	})
}

func TestHandleDelete(t *testing.T) {
	t.Run("owner delete returns 204", func(t *testing.T) {
		uc := &mockRenderUC{deleteFn: func(_ context.Context, userID, renderID string) error {
			if userID != "user-1" || renderID != "rid-1" {
				t.Fatalf("wrong scope %s/%s", userID, renderID)
			}
			return nil
		}}
		srv, _, auth := newTestServer(t, uc, nil)

		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, authedRequest(t, auth, http.MethodDelete, "/api/v1/renders/rid-1", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
	})

	t.Run("foreign or missing render returns 404", func(t *testing.T) {
		uc := &mockRenderUC{deleteFn: func(context.Context, string, string) error {
			return domain.ErrNotFound
		}}
		srv, _, auth := newTestServer(t, uc, nil)

		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, authedRequest(t, auth, http.MethodDelete, "/api/v1/renders/other", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

type mockWatcher struct {
	mu    sync.Mutex
	users []string
	stops int
}

func (m *mockWatcher) Watch(_ context.Context, userID string, _ watch.Handlers) (watch.StopFunc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, userID)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.stops++
	}, nil
}

func TestWatchSessions(t *testing.T) {
	uc := &mockRenderUC{listFn: func(context.Context, string, int, int) ([]*model.Render, error) {
		return nil, nil
	}}
	srv, _, auth := newTestServer(t, uc, nil)
	w := &mockWatcher{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.EnableWatch(ctx, w, watch.Handlers{})
	router := srv.Router()

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(t, auth, http.MethodGet, "/api/v1/renders", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}

	w.mu.Lock()
	users := len(w.users)
	w.mu.Unlock()
	if users != 1 {
		t.Fatalf("expected one watch session per user, got %d", users)
	}

	srv.StopWatches()
	srv.StopWatches() // idempotent
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stops != 1 {
		t.Fatalf("expected one stop, got %d", w.stops)
	}
}

func TestWatchSessionIdleExpiry(t *testing.T) {
	uc := &mockRenderUC{listFn: func(context.Context, string, int, int) ([]*model.Render, error) {
		return nil, nil
	}}
	srv, _, auth := newTestServer(t, uc, nil)
	w := &mockWatcher{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.EnableWatch(ctx, w, watch.Handlers{})
	router := srv.Router()

	request := func() {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(t, auth, http.MethodGet, "/api/v1/renders", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}
	request()

	srv.watches.reapIdle(time.Now())
	w.mu.Lock()
	stops := w.stops
	w.mu.Unlock()
	if stops != 0 {
		t.Fatalf("fresh session reaped: %d stops", stops)
	}

	srv.watches.reapIdle(time.Now().Add(watchIdleAfter + time.Second))
	w.mu.Lock()
	stops = w.stops
	w.mu.Unlock()
	if stops != 1 {
		t.Fatalf("expected idle session stopped, got %d stops", stops)
	}

	// The next request starts a fresh session for the same user.
	request()
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.users) != 2 {
		t.Fatalf("expected session restart after expiry, got %d starts", len(w.users))
	}
}

func TestHandleNotifications(t *testing.T) {
	uc := &mockRenderUC{}
	srv, sink, auth := newTestServer(t, uc, nil)
	router := srv.Router()

	t.Run("owner lists and dismisses", func(t *testing.T) {
		id := sink.Push(notify.Notification{UserID: "user-1", Kind: notify.KindCompleted, RenderID: "rid-1", Message: "Render completed"})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(t, auth, http.MethodGet, "/api/v1/notifications", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp []notificationResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp) != 1 || resp[0].ID != id || resp[0].Kind != "completed" {
			t.Fatalf("unexpected notifications: %+v", resp)
		}

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(t, auth, http.MethodDelete, "/api/v1/notifications/"+id, nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if items := sink.Items("user-1"); len(items) != 0 {
			t.Fatalf("expected empty sink, got %+v", items)
		}
	})

	t.Run("other users see and touch nothing", func(t *testing.T) {
		url := "https://cdn.example/out.png"
		id := sink.Push(notify.Notification{UserID: "user-1", Kind: notify.KindCompleted, RenderID: "rid-2", Message: "Render completed", ImageURL: &url})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequestAs(t, auth, "user-2", http.MethodGet, "/api/v1/notifications", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp []notificationResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp) != 0 {
			t.Fatalf("expected no foreign notifications, got %+v", resp)
		}

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequestAs(t, auth, "user-2", http.MethodDelete, "/api/v1/notifications/"+id, nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if items := sink.Items("user-1"); len(items) != 1 {
			t.Fatalf("expected notification to survive a foreign dismiss, got %+v", items)
		}
	})
}
