// Package api serves stored experiment results over HTTP for external
// viewers and plotting tools. All endpoints are read-only.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/seir-sim/internal/engine"
	"github.com/talgya/seir-sim/internal/experiment"
	"github.com/talgya/seir-sim/internal/persistence"
)

// Server serves the result store over HTTP.
type Server struct {
	DB      *persistence.DB
	Addr    string
	Version string
	Logger  *slog.Logger

	// Per-IP limit on the curve endpoints. Zero uses 120 per minute.
	CurveRate int

	curves *RateLimiter
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Handler returns the API routes wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	rate := s.CurveRate
	if rate <= 0 {
		rate = 120
	}
	if s.curves == nil {
		s.curves = NewRateLimiter(rate, time.Minute)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/experiments", s.handleExperiments)
	mux.HandleFunc("GET /api/v1/experiments/{id}", s.handleExperiment)
	mux.HandleFunc("GET /api/v1/experiments/{id}/mean", RateLimitMiddleware(s.curves, s.handleMeanCurve))
	mux.HandleFunc("GET /api/v1/runs/{run}/counts", RateLimitMiddleware(s.curves, s.handleRunCounts))
	mux.HandleFunc("GET /api/v1/runs/{run}/exposures", RateLimitMiddleware(s.curves, s.handleRunExposures))
	return corsMiddleware(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.curves.RunCleanup(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger().Info("HTTP API starting", "addr", s.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger().Info("HTTP API shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	recs, err := s.DB.ListExperiments(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := map[string]any{
		"name":        "seirsim",
		"version":     s.Version,
		"experiments": len(recs),
	}
	if key, err := s.DB.GetMeta("last_heatmap_key"); err == nil {
		status["last_heatmap_key"] = key
	}
	writeJSON(w, status)
}

type experimentSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Created    string `json:"created"`
	Layout     string `json:"layout"`
	HeatmapKey string `json:"heatmap_key"`
	NRuns      int    `json:"n_runs"`
	Failed     int    `json:"failed"`
}

func summarize(rec persistence.ExperimentRecord) experimentSummary {
	return experimentSummary{
		ID:         rec.ID,
		Name:       rec.Name,
		Created:    rec.Created().UTC().Format(time.RFC3339),
		Layout:     rec.Layout,
		HeatmapKey: rec.HeatmapKey,
		NRuns:      rec.NRuns,
		Failed:     rec.Failed,
	}
}

func (s *Server) handleExperiments(w http.ResponseWriter, r *http.Request) {
	recs, err := s.DB.ListExperiments(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]experimentSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, summarize(rec))
	}
	writeJSON(w, out)
}

type runSummary struct {
	ID             int64   `json:"id"`
	Run            int     `json:"run"`
	Seed           int64   `json:"seed"`
	Status         string  `json:"status"`
	Error          string  `json:"error,omitempty"`
	Ticks          int     `json:"ticks"`
	PeakInfectious int     `json:"peak_infectious"`
	PeakTick       int     `json:"peak_tick"`
	AttackRate     float64 `json:"attack_rate"`
	Final          [4]int  `json:"final"`
	ElapsedMS      int64   `json:"elapsed_ms"`
}

func (s *Server) handleExperiment(w http.ResponseWriter, r *http.Request) {
	rec, err := s.DB.GetExperiment(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	runs, err := s.DB.ListRuns(r.Context(), rec.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	cfg, err := rec.Config()
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, runSummary{
			ID: run.ID, Run: run.RunIndex, Seed: run.Seed, Status: run.Status, Error: run.Error,
			Ticks: run.Ticks, PeakInfectious: run.PeakInfectious, PeakTick: run.PeakTick,
			AttackRate: run.AttackRate, Final: [4]int{run.FinalS, run.FinalE, run.FinalI, run.FinalR},
			ElapsedMS: run.ElapsedMS,
		})
	}
	writeJSON(w, map[string]any{
		"experiment": summarize(rec),
		"config":     cfg,
		"runs":       out,
	})
}

// handleMeanCurve returns the per-tick mean S/E/I/R over the completed runs
// of an experiment. Row 0 is the population right after seeding.
func (s *Server) handleMeanCurve(w http.ResponseWriter, r *http.Request) {
	rec, err := s.DB.GetExperiment(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	runs, err := s.DB.ListRuns(r.Context(), rec.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var results []*engine.RunResult
	for _, run := range runs {
		if run.Status != persistence.StatusOK {
			continue
		}
		counts, err := s.DB.LoadRunCounts(r.Context(), run.ID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		results = append(results, &engine.RunResult{Run: run.RunIndex, Seed: run.Seed, Counts: counts})
	}
	mean, err := experiment.MeanCurve(results)
	if err != nil {
		s.writeError(w, err)
		return
	}
	every, err := strideParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows := make([][5]float64, 0, len(mean)/every+1)
	for t := 0; t < len(mean); t += every {
		rows = append(rows, [5]float64{float64(t), mean[t][0], mean[t][1], mean[t][2], mean[t][3]})
	}
	writeJSON(w, map[string]any{
		"experiment": rec.ID,
		"runs":       len(results),
		"columns":    []string{"tick", "susceptible", "exposed", "infectious", "removed"},
		"rows":       rows,
	})
}

func (s *Server) handleRunCounts(w http.ResponseWriter, r *http.Request) {
	runID, err := strconv.ParseInt(r.PathValue("run"), 10, 64)
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}
	every, err := strideParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	counts, err := s.DB.LoadRunCounts(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(counts) == 0 {
		http.Error(w, "no counts stored for run", http.StatusNotFound)
		return
	}
	rows := make([][5]int, 0, len(counts)/every+1)
	for t := 0; t < len(counts); t += every {
		c := counts[t]
		rows = append(rows, [5]int{t, c.S, c.E, c.I, c.R})
	}
	writeJSON(w, map[string]any{
		"run":     runID,
		"columns": []string{"tick", "susceptible", "exposed", "infectious", "removed"},
		"rows":    rows,
	})
}

func (s *Server) handleRunExposures(w http.ResponseWriter, r *http.Request) {
	runID, err := strconv.ParseInt(r.PathValue("run"), 10, 64)
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}
	events, err := s.DB.LoadExposures(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if events == nil {
		events = []engine.Exposure{}
	}
	writeJSON(w, events)
}

// strideParam parses the optional ?every=N downsampling stride.
func strideParam(r *http.Request) (int, error) {
	v := r.URL.Query().Get("every")
	if v == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("every must be a positive integer, got %q", v)
	}
	return n, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, persistence.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.logger().Error("api request failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
