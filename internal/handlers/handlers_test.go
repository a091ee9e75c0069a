package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/bypass"
)

type fakeFetcher struct {
	content string
	err     error
	lastURL string
	lastTTL time.Duration
}

func (f *fakeFetcher) FetchProtected(_ context.Context, url string, opts *bypass.FetchOptions) (string, error) {
	f.lastURL = url
	if opts != nil {
		f.lastTTL = opts.CacheTTL
	}
	return f.content, f.err
}

func doRequest(t *testing.T, h *Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)
	return rec
}

func TestHandleFetchSuccess(t *testing.T) {
	f := &fakeFetcher{content: "<html>chapter</html>"}
	h := New(f)

	rec := doRequest(t, h, http.MethodPost, "/v1/fetch", `{"url":"https://example.com/c/1","cacheTime":30}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp FetchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Solution != "<html>chapter</html>" {
		t.Errorf("resp = %+v", resp)
	}
	if f.lastURL != "https://example.com/c/1" {
		t.Errorf("url passed through = %q", f.lastURL)
	}
	if f.lastTTL != 30*time.Second {
		t.Errorf("cacheTime not converted: %v", f.lastTTL)
	}
}

func TestHandleFetchMalformedBody(t *testing.T) {
	h := New(&fakeFetcher{})

	rec := doRequest(t, h, http.MethodPost, "/v1/fetch", `{"url": `)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleFetchMissingURL(t *testing.T) {
	h := New(&fakeFetcher{})

	rec := doRequest(t, h, http.MethodPost, "/v1/fetch", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleFetchSentinelReportedAsFailed(t *testing.T) {
	f := &fakeFetcher{content: "Ray ID: 504 Gateway Timeout"}
	h := New(f)

	rec := doRequest(t, h, http.MethodPost, "/v1/fetch", `{"url":"https://example.com/"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp FetchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "failed" {
		t.Errorf("status = %q, want failed", resp.Status)
	}
	if resp.Message != "Ray ID: 504 Gateway Timeout" {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.Solution != "" {
		t.Errorf("solution should be empty for sentinel results: %q", resp.Solution)
	}
}

func TestHandleFetchBrowserError(t *testing.T) {
	f := &fakeFetcher{err: errors.New("browser unreachable")}
	h := New(f)

	rec := doRequest(t, h, http.MethodPost, "/v1/fetch", `{"url":"https://example.com/"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestHandleFetchMethodNotAllowed(t *testing.T) {
	h := New(&fakeFetcher{})

	rec := doRequest(t, h, http.MethodGet, "/v1/fetch", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	h := New(&fakeFetcher{})

	rec := doRequest(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Version == "" || resp.GoVersion == "" {
		t.Errorf("resp = %+v", resp)
	}
}
