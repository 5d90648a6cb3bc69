package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/bfussell/libamvp/internal/errors"
	"github.com/bfussell/libamvp/internal/metrics"
	"github.com/bfussell/libamvp/internal/retry"
)

type nopLogger struct{}

func (nopLogger) Verbose(string, ...interface{}) {}

// newTestClient builds a client with millisecond backoff so retry
// tests finish quickly.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(TLSFiles{}, nopLogger{}, metrics.New())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.Backoff = &retry.Backoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  4,
	}
	return c
}

func TestDoJSONRoundTrip(t *testing.T) {
	type echo struct {
		Name string `json:"name"`
	}
	var gotAuth, gotContentType, gotRequestID string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotRequestID = r.Header.Get("X-Request-Id")
		var in echo
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(echo{Name: in.Name + "-ack"})
	}))
	defer ts.Close()

	c := newTestClient(t)
	c.SetToken("jwt-token")

	var out echo
	if err := c.DoJSON(context.Background(), "echo", http.MethodPost, ts.URL, echo{Name: "ping"}, &out); err != nil {
		t.Fatalf("DoJSON: %v", err)
	}
	if out.Name != "ping-ack" {
		t.Errorf("response = %q, want %q", out.Name, "ping-ack")
	}
	if gotAuth != "Bearer jwt-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if _, err := uuid.Parse(gotRequestID); err != nil {
		t.Errorf("X-Request-Id %q is not a UUID: %v", gotRequestID, err)
	}
}

func TestDoJSONNoBodyNoAuth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected Authorization header %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "" {
			t.Errorf("unexpected Content-Type header %q", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	c := newTestClient(t)
	if err := c.DoJSON(context.Background(), "probe", http.MethodGet, ts.URL, nil, nil); err != nil {
		t.Fatalf("DoJSON: %v", err)
	}
}

func TestDoJSONRetriesServiceUnavailable(t *testing.T) {
	var hits atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	c := newTestClient(t)
	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.DoJSON(context.Background(), "flaky", http.MethodGet, ts.URL, nil, &out); err != nil {
		t.Fatalf("DoJSON: %v", err)
	}
	if !out.OK {
		t.Error("expected ok response after retries")
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hit %d times, want 3", got)
	}
}

func TestDoJSONBadRequestIsPermanent(t *testing.T) {
	var hits atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	c := newTestClient(t)
	err := c.DoJSON(context.Background(), "bad", http.MethodPost, ts.URL, map[string]int{"x": 1}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var perr *apperrors.ProtocolError
	if !apperrors.As(err, &perr) {
		t.Fatalf("error %T is not a ProtocolError", err)
	}
	if perr.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", perr.Status)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hit %d times, want 1 (no retry on 4xx)", got)
	}
}

func TestDoJSONRetriesExhausted(t *testing.T) {
	var hits atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := newTestClient(t)
	if err := c.DoJSON(context.Background(), "down", http.MethodGet, ts.URL, nil, nil); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := hits.Load(); got != int64(c.Backoff.MaxAttempts) {
		t.Errorf("server hit %d times, want %d", got, c.Backoff.MaxAttempts)
	}
}

func TestGetRaw(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		w.Write([]byte(`{"raw":"body"}`))
	}))
	defer ts.Close()

	c := newTestClient(t)
	body, err := c.GetRaw(context.Background(), "raw", ts.URL)
	if err != nil {
		t.Fatalf("GetRaw: %v", err)
	}
	if string(body) != `{"raw":"body"}` {
		t.Errorf("body = %q", body)
	}
}

func TestRetryAfterHeader(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 0},
		{"not-a-number", 0},
		{"0", 0},
		{"-3", 0},
		{"2", 2 * time.Second},
	}
	for _, tt := range tests {
		resp := &http.Response{Header: http.Header{}}
		if tt.header != "" {
			resp.Header.Set("Retry-After", tt.header)
		}
		if got := retryAfter(resp); got != tt.want {
			t.Errorf("retryAfter(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestTLSConfigClientPair(t *testing.T) {
	// Half a pair is ignored rather than rejected at this layer; the
	// config validation upstream is what demands both halves.
	cfg, err := tlsConfig(TLSFiles{CertFile: "only-cert.pem"})
	if err != nil {
		t.Fatalf("tlsConfig: %v", err)
	}
	if len(cfg.Certificates) != 0 {
		t.Errorf("expected no client certificates, got %d", len(cfg.Certificates))
	}
	if cfg.MinVersion != 0x0303 { // TLS 1.2
		t.Errorf("MinVersion = %#x, want TLS 1.2", cfg.MinVersion)
	}
}

func TestTLSConfigMissingCAFile(t *testing.T) {
	if _, err := tlsConfig(TLSFiles{CAFile: "does-not-exist.pem"}); err == nil {
		t.Fatal("expected error for missing CA file")
	}
}
