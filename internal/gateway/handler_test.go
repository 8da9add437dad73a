package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Seaweed-Boi/Elastic-Rag/internal/state"
)

func newTestServer(t *testing.T, queue state.Queue, mem *state.Memory, cfg Config) *httptest.Server {
	t.Helper()
	o := newTestOrchestrator(queue, mem, mem.Loads(), cfg)
	srv := httptest.NewServer(NewHandler(o))
	t.Cleanup(srv.Close)
	return srv
}

func postQuery(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/query", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /query: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func errorType(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body.Error.Type
}

func TestQueryEndpointSuccess(t *testing.T) {
	mem := state.NewMemory()
	srv := newTestServer(t, mem, mem, Config{PollInterval: 5 * time.Millisecond, Deadline: 2 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go completeJobs(ctx, t, mem, "served answer")

	resp := postQuery(t, srv, `{"query":"what is RAG?"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if res.Answer != "served answer" {
		t.Errorf("Answer = %q, want %q", res.Answer, "served answer")
	}
}

func TestQueryEndpointTimeout(t *testing.T) {
	mem := state.NewMemory()
	srv := newTestServer(t, mem, mem, Config{PollInterval: 5 * time.Millisecond, Deadline: 30 * time.Millisecond})

	resp := postQuery(t, srv, `{"query":"q"}`)
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", resp.StatusCode)
	}
	if got := errorType(t, resp); got != "timeout_error" {
		t.Errorf("error type = %q, want %q", got, "timeout_error")
	}
}

func TestQueryEndpointDispatchFailure(t *testing.T) {
	mem := state.NewMemory()
	srv := newTestServer(t, failingQueue{}, mem, Config{PollInterval: 5 * time.Millisecond, Deadline: time.Second})

	resp := postQuery(t, srv, `{"query":"q"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if got := errorType(t, resp); got != "dispatch_error" {
		t.Errorf("error type = %q, want %q", got, "dispatch_error")
	}
}

func TestQueryEndpointBadRequest(t *testing.T) {
	mem := state.NewMemory()
	srv := newTestServer(t, mem, mem, Config{PollInterval: 5 * time.Millisecond, Deadline: time.Second})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"empty query", `{"query":""}`},
		{"missing query", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postQuery(t, srv, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	mem := state.NewMemory()
	srv := newTestServer(t, mem, mem, Config{})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want %q", body["status"], "ok")
	}
}
