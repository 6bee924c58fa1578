package kumo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kumorfm/internal/logging"
)

// CredentialSource supplies the API key for outgoing requests. The session
// implements it; tests use a literal.
type CredentialSource interface {
	APIKey(ctx context.Context) (string, error)
}

// APIKey is a static CredentialSource.
type APIKey string

func (k APIKey) APIKey(ctx context.Context) (string, error) { return string(k), nil }

// Client talks to the KumoRFM REST API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	credentials CredentialSource
}

// NewClient builds a client for the given base URL. A zero timeout disables
// the client-side deadline; callers still control per-request contexts.
func NewClient(baseURL string, credentials CredentialSource, timeout time.Duration) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		credentials: credentials,
	}
}

// Predict runs a predictive query against a frozen graph.
func (c *Client) Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	var resp PredictResponse
	if err := c.post(ctx, "/v1/predict", req, &resp); err != nil {
		return nil, err
	}
	logging.LogPerformance("predict", start, "rows", len(resp.Predictions))
	return &resp, nil
}

// Evaluate scores a predictive query on held-out historical data.
func (c *Client) Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	var resp EvaluateResponse
	if err := c.post(ctx, "/v1/evaluate", req, &resp); err != nil {
		return nil, err
	}
	logging.LogPerformance("evaluate", start, "metrics", len(resp.Metrics))
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	key, err := c.credentials.APIKey(ctx)
	if err != nil {
		return fmt.Errorf("resolving credentials: %w", err)
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newStatusError(resp.StatusCode, readErrorMessage(resp.Body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// readErrorMessage extracts a human-readable message from an error body,
// which the service reports as {"detail": ...} or {"message": ...}.
func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "no error detail"
	}

	var body struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Detail != "" {
			return body.Detail
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
