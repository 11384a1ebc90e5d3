// File: internal/infra/web/handlers.go
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"render-studio/internal/domain"
	"render-studio/internal/domain/model"
	"render-studio/internal/usecase"

	"github.com/go-chi/chi/v5"
)

type submitRequest struct {
	RenderType        string  `json:"render_type"`
	Image             string  `json:"image"`
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt"`
	GuidanceScale     float64 `json:"guidance_scale"`
	PromptStrength    float64 `json:"prompt_strength"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	Seed              *int64  `json:"seed"`
}

type submitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Prompt string `json:"prompt"`
}

type renderResponse struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	Prompt    string  `json:"prompt,omitempty"`
	ImageURL  *string `json:"imageUrl,omitempty"`
	Error     string  `json:"error,omitempty"`
	CreatedAt int64   `json:"created_at"`
	UpdatedAt int64   `json:"updated_at"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toRenderResponse(r *model.Render) renderResponse {
	return renderResponse{
		ID:        r.PredictionID,
		Status:    string(r.Status),
		Prompt:    r.Prompt,
		ImageURL:  r.ImageURL,
		Error:     r.ErrorText,
		CreatedAt: r.CreatedAt.UnixMilli(),
		UpdatedAt: r.UpdatedAt.UnixMilli(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// writeDomainError maps domain sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnreachableImage):
		writeError(w, http.StatusUnprocessableEntity, "unreachable_image", err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusUnprocessableEntity, "invalid_argument", err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "no such render")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "not the owner")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid session")
	default:
		writeError(w, http.StatusBadGateway, "provider_error", "generation backend unavailable")
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	userID := UserFromContext(r.Context())

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	rec, err := s.renderUC.Submit(r.Context(), userID, usecase.SubmitInput{
		RenderType:        req.RenderType,
		Image:             req.Image,
		Prompt:            req.Prompt,
		NegativePrompt:    req.NegativePrompt,
		GuidanceScale:     req.GuidanceScale,
		PromptStrength:    req.PromptStrength,
		NumInferenceSteps: req.NumInferenceSteps,
		Seed:              req.Seed,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := s.tracker.EnqueueTrack(userID, rec.PredictionID); err != nil {
		// Not fatal; the stale-render sweep converges the record later.
		s.log.Warn().Err(err).Str("prediction_id", rec.PredictionID).Msg("track enqueue failed")
	}

	writeJSON(w, http.StatusCreated, submitResponse{
		ID:     rec.PredictionID,
		Status: string(rec.Status),
		Prompt: rec.Prompt,
	})
}

// handlePoll serves one status observation. The lookup goes through the
// use case so every client poll doubles as a self-healing upsert.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	userID := UserFromContext(r.Context())
	predictionID := chi.URLParam(r, "id")
	if predictionID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing prediction id")
		return
	}

	rec, err := s.renderUC.Poll(r.Context(), userID, predictionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRenderResponse(rec))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	userID := UserFromContext(r.Context())

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 18
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.renderUC.List(r.Context(), userID, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]renderResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toRenderResponse(row))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID := UserFromContext(r.Context())
	renderID := chi.URLParam(r, "id")

	if err := s.renderUC.Delete(r.Context(), userID, renderID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type notificationResponse struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	RenderID string  `json:"render_id"`
	Status   string  `json:"status"`
	Message  string  `json:"message"`
	ImageURL *string `json:"imageUrl,omitempty"`
	TTLMs    int64   `json:"ttl_ms"`
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	items := s.sink.Items(UserFromContext(r.Context()))
	out := make([]notificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, notificationResponse{
			ID:       n.ID,
			Kind:     string(n.Kind),
			RenderID: n.RenderID,
			Status:   string(n.Status),
			Message:  n.Message,
			ImageURL: n.ImageURL,
			TTLMs:    n.ExpiresAt.Sub(now).Milliseconds(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	s.sink.Dismiss(UserFromContext(r.Context()), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}
