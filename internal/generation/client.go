// Package generation is the HTTP client for the text-generation backend,
// the most failure-prone external dependency in the pipeline.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client communicates with a generation endpoint over HTTP. Replica labels
// are logical identities for load accounting; they only resolve to distinct
// endpoints when a per-replica base URL is configured.
type Client struct {
	baseURL     string
	apiPath     string
	replicaURLs map[string]string
	httpClient  *http.Client
}

// New creates a Client with the default base URL and API path. replicas and
// replicaBaseURLs are matched by position; replicas without a configured URL
// resolve to the default.
func New(baseURL, apiPath string, replicas, replicaBaseURLs []string, timeout time.Duration) *Client {
	urls := make(map[string]string, len(replicaBaseURLs))
	for i, u := range replicaBaseURLs {
		if i >= len(replicas) || u == "" {
			break
		}
		urls[replicas[i]] = strings.TrimRight(u, "/")
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiPath:     apiPath,
		replicaURLs: urls,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// DefaultEndpoint returns the statically configured generation endpoint.
func (c *Client) DefaultEndpoint() string {
	return c.baseURL + c.apiPath
}

// EndpointFor resolves a replica label to its generation endpoint, falling
// back to the default endpoint for unmapped or empty labels.
func (c *Client) EndpointFor(replica string) string {
	if u, ok := c.replicaURLs[replica]; ok {
		return u + c.apiPath
	}
	return c.DefaultEndpoint()
}

// generateRequest is the JSON body for the generation call.
type generateRequest struct {
	Prompt string `json:"prompt"`
	JobID  string `json:"job_id"`
}

// generateResponse is the JSON returned by the generation backend. Some
// backends name the answer field "response"; accept both.
type generateResponse struct {
	Answer   string `json:"answer"`
	Response string `json:"response"`
}

// Generate calls the given endpoint with the prompt and returns the answer text.
func (c *Client) Generate(ctx context.Context, endpoint, prompt, jobID string) (string, error) {
	body, err := json.Marshal(generateRequest{Prompt: prompt, JobID: jobID})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("generate: unexpected status %d from %s", resp.StatusCode, endpoint)
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding generate response: %w", err)
	}
	if result.Answer != "" {
		return result.Answer, nil
	}
	return result.Response, nil
}
