package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/mowsen/fingerprint/internal/store"
)

// Server serves the /metrics Prometheus endpoint plus a small JSON stats API
// backed by the daily_stats rollup table.
type Server struct {
	router    chi.Router
	collector *Collector
	store     *store.Store
	addr      string
	server    *http.Server
}

// NewServer creates a new Server wired to the given collector, store, and
// listen address.
func NewServer(collector *Collector, st *store.Store, addr string) *Server {
	s := &Server{collector: collector, store: st, addr: addr}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/stats", s.handleStats)
	r.Get("/api/stats/history", s.handleStatsHistory)
	r.Get("/metrics", PrometheusHandler(collector))

	s.router = r
	return s
}

// Start begins listening on the configured address. It blocks until the
// server is shut down or an error occurs.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("metrics server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the underlying chi router, e.g. for mounting under a
// larger mux in tests.
func (s *Server) Router() chi.Router { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.collector.Stats())
}

// dailyStatsPoint mirrors one row of the daily_stats rollup.
type dailyStatsPoint struct {
	Date             string  `json:"date"`
	Total            int64   `json:"total"`
	Unique           int64   `json:"unique"`
	Exact            int64   `json:"exact"`
	Stable           int64   `json:"stable"`
	GPU              int64   `json:"gpu"`
	FuzzyStable      int64   `json:"fuzzy_stable"`
	Fuzzy            int64   `json:"fuzzy"`
	New              int64   `json:"new"`
	AvgEntropy       float64 `json:"avg_entropy"`
	EntropySamples   int64   `json:"entropy_sample_count"`
}

// handleStatsHistory returns daily_stats rows. Accepts ?range=1d, 7d, 30d
// (default 7d).
func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	rangeParam := r.URL.Query().Get("range")
	if rangeParam == "" {
		rangeParam = "7d"
	}

	since, err := parseDurationParam(rangeParam)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid range parameter"})
		return
	}
	sinceDate := time.Now().UTC().Add(-since).Format("2006-01-02")

	rows, err := s.store.Reader().Query(`
		SELECT date, total, unique_count, exact_count, stable_count, gpu_count,
		       fuzzy_stable_count, fuzzy_count, new_count, avg_entropy, entropy_sample_count
		FROM daily_stats
		WHERE date >= ?
		ORDER BY date ASC`, sinceDate)
	if err != nil {
		log.Error().Err(err).Msg("failed to query stats history")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database error"})
		return
	}
	defer rows.Close()

	points := []dailyStatsPoint{}
	for rows.Next() {
		var p dailyStatsPoint
		if err := rows.Scan(&p.Date, &p.Total, &p.Unique, &p.Exact, &p.Stable, &p.GPU,
			&p.FuzzyStable, &p.Fuzzy, &p.New, &p.AvgEntropy, &p.EntropySamples); err != nil {
			log.Error().Err(err).Msg("failed to scan daily_stats row")
			continue
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("daily_stats rows iteration error")
	}

	writeJSON(w, http.StatusOK, points)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

// parseDurationParam converts a shorthand like "7d" or "24h" to a time.Duration.
func parseDurationParam(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		numStr := strings.TrimSuffix(s, "d")
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
