package normalize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/fitmentiq/fitment-server/internal/config"
	"github.com/fitmentiq/fitment-server/internal/errors"
	"github.com/fitmentiq/fitment-server/internal/store/sqlite"
)

const systemPrompt = `You normalize free-text automotive fitment rows to catalog vehicles.
You are given a row of text and a list of candidate vehicles from the catalog.
Pick the single best candidate, or null when none fits.
Respond with a JSON object:
{"chosen_vehicle_id": <int or null>, "confidence": <0..1>, "confidence_explanation": "<short>", "reasoning": "<why>"}`

// chatMessage is one message of a chat completion request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the completion API request body.
type chatRequest struct {
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the completion API response body.
type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// verdict is the JSON shape the model is instructed to return.
type verdict struct {
	ChosenVehicleID       *int    `json:"chosen_vehicle_id"`
	Confidence            float64 `json:"confidence"`
	ConfidenceExplanation string  `json:"confidence_explanation"`
	Reasoning             string  `json:"reasoning"`
}

// AINormalizer calls a deployment-addressed chat completion service. The
// endpoint, deployment name, and API version come from configuration.
type AINormalizer struct {
	endpoint   string
	apiKey     string
	deployment string
	apiVersion string

	http   *http.Client
	store  *sqlite.Store
	logger *slog.Logger
}

// NewAINormalizer creates a normalizer against the configured completion
// service. The store is consulted to keep chosen vehicle ids resolvable.
func NewAINormalizer(cfg config.AIConfig, store *sqlite.Store, logger *slog.Logger) *AINormalizer {
	return &AINormalizer{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		deployment: cfg.Deployment,
		apiVersion: cfg.APIVersion,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		store:  store,
		logger: logger,
	}
}

// completionURL builds the deployment-scoped chat completion URL.
func (n *AINormalizer) completionURL() string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		n.endpoint, url.PathEscape(n.deployment), url.QueryEscape(n.apiVersion))
}

// Normalize asks the completion service to pick the best candidate for the
// row. Upstream failures surface as NormalizationFailure with the upstream
// error text preserved.
func (n *AINormalizer) Normalize(ctx context.Context, in Input) (*Output, error) {
	if n.endpoint == "" {
		return nil, errors.NormalizationFailure("ai endpoint not configured")
	}

	userPrompt, err := buildUserPrompt(in)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNormalizationFailure, "build prompt")
	}

	body, err := json.Marshal(chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNormalizationFailure, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.completionURL(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNormalizationFailure, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", n.apiKey)

	resp, err := n.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNormalizationFailure, "completion request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNormalizationFailure, "read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NormalizationFailure(
			fmt.Sprintf("completion service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	var cr chatResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return nil, errors.Wrap(err, errors.CodeNormalizationFailure, "decode response")
	}
	if cr.Error != nil {
		return nil, errors.NormalizationFailure(cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return nil, errors.NormalizationFailure("completion returned no choices")
	}

	var v verdict
	if err := json.Unmarshal([]byte(cr.Choices[0].Message.Content), &v); err != nil {
		return nil, errors.Wrap(err, errors.CodeNormalizationFailure, "decode verdict")
	}

	out := &Output{
		ChosenVehicleID:       v.ChosenVehicleID,
		Confidence:            clamp01(v.Confidence),
		ConfidenceExplanation: v.ConfidenceExplanation,
		Reasoning:             v.Reasoning,
	}

	// The chosen id must resolve to a catalog vehicle; a hallucinated id
	// becomes a null verdict.
	if out.ChosenVehicleID != nil {
		exists, err := n.store.VehicleExists(ctx, *out.ChosenVehicleID)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeStoreFailure, "verify chosen vehicle")
		}
		if !exists {
			n.logger.Warn("normalizer chose unknown vehicle, nulling verdict",
				"vehicle_id", *out.ChosenVehicleID, "row", in.RowText)
			out.ChosenVehicleID = nil
			out.Confidence = 0
			out.ConfidenceExplanation = "chosen vehicle not present in catalog"
		}
	}

	return out, nil
}

// buildUserPrompt renders the row and its candidates for the model.
func buildUserPrompt(in Input) (string, error) {
	candidates, err := json.Marshal(in.Candidates)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Row: %s\nCandidates: %s", in.RowText, candidates), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
