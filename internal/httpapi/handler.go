// Package httpapi is the thin chi-routed HTTP entry point over the
// matching engine: decode one submission, call Identify, encode the
// result. It does not implement CORS or JSON-schema validation; those are
// non-goals left to an external fronting layer.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/mowsen/fingerprint/internal/matchengine"
	"github.com/mowsen/fingerprint/internal/tracing"
)

// engine is the surface httpapi needs from matchengine.Engine.
type engine interface {
	Identify(ctx context.Context, sub matchengine.Submission, meta matchengine.RequestMeta) (matchengine.MatchResult, error)
}

// Handler wires a chi router over one Engine.
type Handler struct {
	engine      engine
	router      chi.Router
	requestTimeout time.Duration
}

// NewHandler builds a Handler and its router. requestTimeout bounds how
// long Identify is given to complete before the request context is
// cancelled; zero means no timeout.
func NewHandler(e engine, requestTimeout time.Duration) *Handler {
	h := &Handler{engine: e, requestTimeout: requestTimeout}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(tracing.HTTPMiddleware)
	r.Get("/healthz", h.handleHealth)
	r.Post("/identify", h.handleIdentify)

	h.router = r
	return h
}

// Router exposes the underlying chi router for mounting or testing.
func (h *Handler) Router() chi.Router { return h.router }

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// submissionPayload mirrors spec §6.1's wire shape for a fingerprint
// submission.
type submissionPayload struct {
	Fingerprint     string          `json:"fingerprint"`
	FuzzyHash       string          `json:"fuzzyHash"`
	StableHash      string          `json:"stableHash,omitempty"`
	GPUTimingHash   string          `json:"gpuTimingHash,omitempty"`
	GPUScore        float64         `json:"gpuScore,omitempty"`
	GPUSupported    bool            `json:"gpuSupported,omitempty"`
	Components      json.RawMessage `json:"components,omitempty"`
	Entropy         float64         `json:"entropy,omitempty"`
	DetectedBrowser string          `json:"detectedBrowser,omitempty"`
	PersistentID    string          `json:"persistentId,omitempty"`
	Timestamp       int64           `json:"timestamp,omitempty"`
	IsFarbled       bool            `json:"isFarbled,omitempty"`
}

func (h *Handler) handleIdentify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	var payload submissionPayload
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed JSON body", Field: ""})
		return
	}

	sub := matchengine.Submission{
		Fingerprint:     payload.Fingerprint,
		FuzzyHash:       payload.FuzzyHash,
		StableHash:      payload.StableHash,
		GPUTimingHash:   payload.GPUTimingHash,
		GPUTiming:       matchengine.GPUTiming{Supported: payload.GPUSupported, Score: payload.GPUScore},
		Components:      string(payload.Components),
		Entropy:         payload.Entropy,
		DetectedBrowser: payload.DetectedBrowser,
		PersistentID:    payload.PersistentID,
		Timestamp:       payload.Timestamp,
		IsFarbled:       payload.IsFarbled,
	}
	meta := requestMetaFromHTTP(r)

	ctx, span := tracing.StartMatchSpan(ctx, "identify")
	tracing.SetSubmissionAttributes(ctx, sub.StableHash != "", sub.GPUTimingHash != "", sub.PersistentID != "")
	defer span.End()

	result, err := h.engine.Identify(ctx, sub, meta)
	if err != nil {
		tracing.RecordError(ctx, err)
		writeError(w, err)
		return
	}

	tracing.SetMatchAttributes(ctx, result.VisitorID, result.MatchType, result.Confidence, result.IsNewVisitor)
	writeJSON(w, http.StatusOK, responseFromResult(result))
}

func requestMetaFromHTTP(r *http.Request) matchengine.RequestMeta {
	ip := clientIP(r)
	return matchengine.RequestMeta{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
		TLSJA4:    r.Header.Get("X-JA4"),
		TLSJA3:    r.Header.Get("X-JA3"),
	}
}

// clientIP takes the first segment of X-Forwarded-For when present,
// falling back to the peer address. Neither is used for matching; both
// are persisted to the session row only.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host
}

func writeError(w http.ResponseWriter, err error) {
	switch e := err.(type) {
	case *matchengine.InvalidSubmissionError:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: e.Error(), Field: e.Field})
	case *matchengine.TimeoutError:
		log.Error().Err(err).Msg("identify timed out")
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: "request timed out"})
	case *matchengine.StoreError:
		log.Error().Err(err).Msg("identify store error")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	default:
		log.Error().Err(err).Msg("identify unexpected error")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}
