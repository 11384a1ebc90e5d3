// File: internal/infra/adapters/replicate/replicate_adapter.go
package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"render-studio/internal/domain"
	"render-studio/internal/domain/model"
	"render-studio/internal/domain/ports/adapter"
	"render-studio/internal/infra/transport"
)

var _ adapter.InferenceProvider = (*Adapter)(nil)

// Adapter implements adapter.InferenceProvider against a Replicate-style
// predictions REST API: POST /predictions starts a job, GET /predictions/{id}
// observes it.
type Adapter struct {
	baseURL string
	token   string
	version string
	client  *transport.Client
}

func NewAdapter(baseURL, token, version string, client *transport.Client) (*Adapter, error) {
	if token == "" {
		return nil, errors.New("provider token empty")
	}
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	return &Adapter{baseURL: baseURL, token: token, version: version, client: client}, nil
}

func (a *Adapter) Name() string { return "replicate" }

type predictionResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  *string         `json:"error"`
}

func (a *Adapter) CreatePrediction(ctx context.Context, in adapter.PredictionInput) (*adapter.PredictionSnapshot, error) {
	input := map[string]any{
		"image":  in.Image,
		"prompt": in.Prompt,
	}
	if in.NegativePrompt != "" {
		input["negative_prompt"] = in.NegativePrompt
	}
	if in.GuidanceScale > 0 {
		input["guidance_scale"] = in.GuidanceScale
	}
	if in.PromptStrength > 0 {
		input["prompt_strength"] = in.PromptStrength
	}
	if in.NumInferenceSteps > 0 {
		input["num_inference_steps"] = in.NumInferenceSteps
	}
	if in.Seed != nil {
		input["seed"] = *in.Seed
	}
	payload := map[string]any{
		"version": a.version,
		"input":   input,
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/predictions", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Content-Type", "application/json")

	return a.roundTrip(req, "create")
}

func (a *Adapter) GetPrediction(ctx context.Context, id string) (*adapter.PredictionSnapshot, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: prediction id is empty", domain.ErrInvalidArgument)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/predictions/"+id, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	return a.roundTrip(req, "get")
}

func (a *Adapter) roundTrip(req *http.Request, op string) (*adapter.PredictionSnapshot, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replicate %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("replicate %s failed: %d %s", op, resp.StatusCode, bytes.TrimSpace(body))
	}

	var out predictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("replicate %s: decode response: %w", op, err)
	}
	return a.normalize(&out)
}

func (a *Adapter) normalize(p *predictionResponse) (*adapter.PredictionSnapshot, error) {
	status, err := model.ParseRenderStatus(p.Status)
	if err != nil {
		return nil, err
	}
	snap := &adapter.PredictionSnapshot{ID: p.ID, Status: status}
	if p.Error != nil {
		snap.Error = *p.Error
	}
	if status == model.RenderStatusSucceeded {
		url, err := DecodeOutput(p.Output)
		if err != nil {
			return nil, err
		}
		if url != "" {
			snap.ImageURL = &url
		}
	}
	return snap, nil
}

// DecodeOutput normalizes the provider's output field into a single artifact
// URL. Accepted shapes: a bare JSON string, an ordered sequence of strings
// (first element wins), or an object carrying the URL under "url", "image",
// or "output". Anything else is a decoding error, not a silent null.
func DecodeOutput(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var seq []string
	if err := json.Unmarshal(raw, &seq); err == nil {
		if len(seq) == 0 {
			return "", nil
		}
		return seq[0], nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"url", "image", "output"} {
			if inner, ok := obj[key]; ok {
				return DecodeOutput(inner)
			}
		}
	}

	return "", fmt.Errorf("%w: %s", domain.ErrUnknownOutput, truncate(raw, 120))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
