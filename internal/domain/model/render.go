package model

import (
	"fmt"
	"strings"
	"time"

	"render-studio/internal/domain"

	"github.com/google/uuid"
)

type RenderStatus string

const (
	RenderStatusQueued        RenderStatus = "queued"
	RenderStatusStarting      RenderStatus = "starting"
	RenderStatusProcessing    RenderStatus = "processing"
	RenderStatusSucceeded     RenderStatus = "succeeded"
	RenderStatusFailed        RenderStatus = "failed"
	RenderStatusCanceled      RenderStatus = "canceled"
	RenderStatusFailedTimeout RenderStatus = "failed_timeout"
)

// terminalStatuses are statuses after which no further transition is expected.
var terminalStatuses = map[RenderStatus]bool{
	RenderStatusSucceeded:     true,
	RenderStatusFailed:        true,
	RenderStatusCanceled:      true,
	RenderStatusFailedTimeout: true,
}

func (s RenderStatus) IsTerminal() bool { return terminalStatuses[s] }

// ParseRenderStatus normalizes a provider-reported status string.
func ParseRenderStatus(raw string) (RenderStatus, error) {
	s := RenderStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case RenderStatusQueued, RenderStatusStarting, RenderStatusProcessing,
		RenderStatusSucceeded, RenderStatusFailed, RenderStatusCanceled,
		RenderStatusFailedTimeout:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown render status %q", domain.ErrInvalidArgument, raw)
}

// Render is one generation job tracked across its lifecycle. It is identified
// locally by ID and externally by the provider-issued PredictionID; the pair
// (UserID, PredictionID) is unique in storage.
type Render struct {
	ID             string
	UserID         string
	PredictionID   string
	RenderType     string
	Prompt         string
	SourceImageURL string
	ImageURL       *string
	ErrorText      string
	Status         RenderStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewRender(userID, predictionID, renderType, prompt, sourceImageURL string, status RenderStatus) (*Render, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is empty", domain.ErrInvalidArgument)
	}
	if predictionID == "" {
		return nil, fmt.Errorf("%w: prediction id is empty", domain.ErrInvalidArgument)
	}
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is empty", domain.ErrInvalidArgument)
	}
	if status == "" {
		status = RenderStatusQueued
	}
	now := time.Now()
	return &Render{
		ID:             uuid.NewString(),
		UserID:         userID,
		PredictionID:   predictionID,
		RenderType:     renderType,
		Prompt:         prompt,
		SourceImageURL: sourceImageURL,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// ApplyStatus merges a freshly observed provider status into the record.
// A terminal status is never replaced by a non-terminal one; a record that
// already succeeded may still gain its image URL on a later observation.
func (r *Render) ApplyStatus(status RenderStatus, imageURL *string, errorText string) {
	if r.Status.IsTerminal() && !status.IsTerminal() {
		// stale poll arriving after completion; keep the terminal status
		if imageURL != nil && r.ImageURL == nil {
			r.ImageURL = imageURL
			r.UpdatedAt = time.Now()
		}
		return
	}
	r.Status = status
	if imageURL != nil {
		r.ImageURL = imageURL
	}
	if errorText != "" {
		r.ErrorText = errorText
	}
	r.UpdatedAt = time.Now()
}

// Active reports whether the render is still expected to change.
func (r *Render) Active() bool { return !r.Status.IsTerminal() }
