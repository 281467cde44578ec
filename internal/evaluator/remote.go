package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/docforge/eval-queue/internal/utils"
)

type remoteEvaluator struct {
	endpoint string
	apiKey   string
	logger   *utils.Logger
	client   *http.Client
}

type remoteResponse struct {
	Outcome *Outcome `json:"outcome"`
	Error   *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// NewRemoteEvaluator talks to an evaluation pipeline service over HTTP.
// The client carries no timeout of its own; the caller bounds the run through
// the request context.
func NewRemoteEvaluator(endpoint, apiKey string, logger *utils.Logger) Evaluator {
	return &remoteEvaluator{
		endpoint: endpoint,
		apiKey:   apiKey,
		logger:   logger,
		client:   &http.Client{},
	}
}

func (e *remoteEvaluator) Evaluate(ctx context.Context, req Request) (*Outcome, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal evaluation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	e.logger.Info("Calling evaluation pipeline",
		"endpoint", e.endpoint,
		"document_path", req.DocumentPath,
		"model_uri", req.ModelURI)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("evaluation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read evaluation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("evaluation pipeline returned status %d: %s", resp.StatusCode, string(body))
	}

	var result remoteResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode evaluation response: %w", err)
	}

	if result.Error != nil {
		return nil, fmt.Errorf("evaluation pipeline error: %s", result.Error.Message)
	}
	if result.Outcome == nil {
		return nil, fmt.Errorf("evaluation pipeline returned no outcome")
	}

	return result.Outcome, nil
}
