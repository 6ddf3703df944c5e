// Package server exposes the extraction pipeline and the media relay over HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/EdvinCodes/offgrid/internal/extract"
	"github.com/EdvinCodes/offgrid/internal/media"
)

// maxRequestBody caps the extraction request body.
const maxRequestBody = 64 * 1024

// Options wires a Server.
type Options struct {
	Extractor extract.Extractor
	// Relay serves /api/proxy.
	Relay    http.Handler
	Gatherer prometheus.Gatherer
	Logger   *zerolog.Logger
	Version  string
}

// Server holds the HTTP handlers.
type Server struct {
	opts Options
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	return &Server{opts: opts}
}

// Handler returns the routed handler with request logging and CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.Healthz)
	mux.HandleFunc("GET /api/extract", s.Extract)
	mux.HandleFunc("POST /api/extract", s.Extract)
	mux.HandleFunc("OPTIONS /api/", preflight)
	if s.opts.Relay != nil {
		mux.Handle("GET /api/proxy", s.opts.Relay)
	}
	if s.opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return s.withRequestLog(cors(mux))
}

type extractRequest struct {
	URL string `json:"url"`
}

// Extract answers with the canonical result. Pipeline failures still answer
// 200 with success=false; only an undecodable body is a 400.
func (s *Server) Extract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, media.Failure(
				media.NewError(media.InvalidInput, "Invalid request: expected JSON {\"url\": \"...\"}.", err)))
			return
		}
	} else {
		req.URL = r.URL.Query().Get("url")
	}

	res := s.opts.Extractor.Extract(r.Context(), req.URL)
	writeJSON(w, http.StatusOK, res)
}

// Healthz reports liveness.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.opts.Version,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", "*")
			h.Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Content-Disposition, X-Request-ID")
		}
		next.ServeHTTP(w, r)
	})
}

func preflight(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Methods", "GET, HEAD, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Range")
	h.Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}
