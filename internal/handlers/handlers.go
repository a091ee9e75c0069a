// Package handlers provides the HTTP front door over the fetch layer.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/bypass"
	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/pkg/version"
)

// FetchRequest is the body of POST /v1/fetch.
type FetchRequest struct {
	URL string `json:"url"`
	// CacheTime overrides the cache TTL for this fetch, in seconds.
	CacheTime int `json:"cacheTime,omitempty"`
}

// FetchResponse is the reply for a completed fetch. Solution holds the
// rendered HTML, or a sentinel string when Status is "failed".
type FetchResponse struct {
	Status   string `json:"status"`
	Solution string `json:"solution,omitempty"`
	Message  string `json:"message,omitempty"`
	Elapsed  int64  `json:"elapsedMillis"`
}

// HealthResponse is the reply for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"goVersion"`
	UptimeSec int64  `json:"uptimeSec"`
}

// Fetcher is the slice of the requester the front door needs.
type Fetcher interface {
	FetchProtected(ctx context.Context, url string, opts *bypass.FetchOptions) (string, error)
}

// Handler routes API requests to the requester.
type Handler struct {
	requester Fetcher
	startedAt time.Time
}

// New creates a Handler over f.
func New(f Fetcher) *Handler {
	return &Handler{
		requester: f,
		startedAt: time.Now(),
	}
}

// Mux returns the service routing table.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/fetch", h.HandleFetch)
	mux.HandleFunc("GET /health", h.HandleHealth)
	return mux
}

// HandleFetch runs a protected fetch and returns the rendered HTML.
// Sentinel results come back with status "failed" and HTTP 200: the fetch
// machinery worked, the target did not yield.
func (h *Handler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	const maxBodySize = 1 << 20 // 1MB
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()

	var req FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("Failed to decode fetch request")
		h.writeError(w, http.StatusBadRequest, "invalid JSON request", start)
		return
	}
	if req.URL == "" {
		h.writeError(w, http.StatusBadRequest, "url is required", start)
		return
	}

	var opts *bypass.FetchOptions
	if req.CacheTime > 0 {
		opts = &bypass.FetchOptions{CacheTTL: time.Duration(req.CacheTime) * time.Second}
	}

	content, err := h.requester.FetchProtected(r.Context(), req.URL, opts)
	if err != nil {
		log.Error().Err(err).Str("url", req.URL).Msg("Fetch failed")
		h.writeError(w, http.StatusBadGateway, err.Error(), start)
		return
	}

	resp := FetchResponse{
		Status:   "ok",
		Solution: content,
		Elapsed:  time.Since(start).Milliseconds(),
	}
	if bypass.IsSentinel(content) {
		resp.Status = "failed"
		resp.Message = content
		resp.Solution = ""
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleHealth returns service health information.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   version.Full(),
		GoVersion: version.GoVersion(),
		UptimeSec: int64(time.Since(h.startedAt).Seconds()),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string, start time.Time) {
	h.writeJSON(w, status, FetchResponse{
		Status:  "error",
		Message: msg,
		Elapsed: time.Since(start).Milliseconds(),
	})
}
