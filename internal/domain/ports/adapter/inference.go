package adapter

import (
	"context"

	"render-studio/internal/domain/model"
)

// PredictionInput is the normalized request sent to the inference provider.
type PredictionInput struct {
	Image             string
	Prompt            string
	NegativePrompt    string
	GuidanceScale     float64
	PromptStrength    float64
	NumInferenceSteps int
	Seed              *int64
}

// PredictionSnapshot is one observation of a provider-side job. ImageURL is
// populated only when the provider reports success and its output decoded to
// a single artifact reference.
type PredictionSnapshot struct {
	ID       string
	Status   model.RenderStatus
	ImageURL *string
	Error    string
}

// InferenceProvider is the external generation service. CreatePrediction
// starts an asynchronous job; GetPrediction observes it. Neither call blocks
// for job completion.
type InferenceProvider interface {
	Name() string
	CreatePrediction(ctx context.Context, in PredictionInput) (*PredictionSnapshot, error)
	GetPrediction(ctx context.Context, id string) (*PredictionSnapshot, error)
}
