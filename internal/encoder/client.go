// Package encoder is the HTTP client for the external embedding service.
// The service's contract is narrow: text in, fixed-length vector out.
package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrEmptyInput is returned for blank input text without calling the service.
var ErrEmptyInput = errors.New("empty input")

// ErrUnavailable is returned when the service reports it cannot serve
// embeddings (its model failed to load).
var ErrUnavailable = errors.New("encoder unavailable")

// Client communicates with the encoder service over HTTP.
type Client struct {
	baseURL    string
	dimension  int
	httpClient *http.Client
}

// New creates a Client for the encoder service at baseURL. When dimension is
// positive, returned vectors are validated against it. timeout bounds each
// call; pass 0 for no per-call limit.
func New(baseURL string, dimension int, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		dimension:  dimension,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// encodeRequest is the JSON body for POST /encode.
type encodeRequest struct {
	Text string `json:"text"`
}

// encodeResponse is the JSON returned by POST /encode.
type encodeResponse struct {
	Vector []float32 `json:"vector"`
	Dim    int       `json:"dim"`
}

// Encode returns the embedding vector for the given text.
func (c *Client) Encode(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	body, err := json.Marshal(encodeRequest{Text: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/encode", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating encode request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, ErrUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("encode: unexpected status %d", resp.StatusCode)
	}

	var result encodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding encode response: %w", err)
	}

	if len(result.Vector) == 0 {
		return nil, fmt.Errorf("encode: empty vector in response")
	}
	if c.dimension > 0 && len(result.Vector) != c.dimension {
		return nil, fmt.Errorf("encode: got %d-dimensional vector, want %d", len(result.Vector), c.dimension)
	}
	return result.Vector, nil
}

// IsRunning returns true if the encoder service responds to GET /health with 200.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
