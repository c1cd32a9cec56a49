package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/seir-sim/internal/agents"
	"github.com/talgya/seir-sim/internal/config"
	"github.com/talgya/seir-sim/internal/engine"
	"github.com/talgya/seir-sim/internal/experiment"
	"github.com/talgya/seir-sim/internal/persistence"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.RunName = "api-test"
	cfg.NRuns = 2
	rec, err := persistence.NewRecord(cfg, "campus", "key123")
	if err != nil {
		t.Fatal(err)
	}
	outcomes := []experiment.Outcome{
		{Run: 0, Seed: 1, Result: &engine.RunResult{
			Run: 0, Seed: 1, NPeople: 4, Initial: engine.Counts{S: 3, I: 1},
			Counts:    []engine.Counts{{S: 2, E: 1, I: 1}, {S: 2, I: 1, R: 1}},
			Exposures: []engine.Exposure{{Tick: 1, Agent: 2, Source: 0, X: 3, Y: 4}},
		}},
		{Run: 1, Seed: 2, Result: &engine.RunResult{
			Run: 1, Seed: 2, NPeople: 4, Initial: engine.Counts{S: 3, I: 1},
			Counts: []engine.Counts{{S: 3, I: 1}, {S: 3, R: 1}},
		}},
	}
	if err := db.SaveExperiment(context.Background(), rec, outcomes); err != nil {
		t.Fatal(err)
	}
	return &Server{DB: db, Version: "test"}, rec.ID
}

func get(t *testing.T, h http.Handler, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	if v != nil && rr.Code == http.StatusOK {
		if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
			t.Fatalf("GET %s: invalid JSON: %v", path, err)
		}
	}
	return rr
}

func TestStatusAndList(t *testing.T) {
	s, id := newTestServer(t)
	h := s.Handler()

	var status map[string]any
	if rr := get(t, h, "/api/v1/status", &status); rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}
	if status["experiments"] != float64(1) || status["version"] != "test" {
		t.Errorf("status = %v", status)
	}

	var list []experimentSummary
	get(t, h, "/api/v1/experiments", &list)
	if len(list) != 1 || list[0].ID != id || list[0].Name != "api-test" {
		t.Errorf("experiments = %+v", list)
	}
}

func TestExperimentDetail(t *testing.T) {
	s, id := newTestServer(t)
	h := s.Handler()

	var detail struct {
		Experiment experimentSummary `json:"experiment"`
		Runs       []runSummary      `json:"runs"`
	}
	if rr := get(t, h, "/api/v1/experiments/"+id[:8], &detail); rr.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rr.Code, rr.Body.String())
	}
	if detail.Experiment.ID != id || len(detail.Runs) != 2 {
		t.Fatalf("detail = %+v", detail)
	}
	if detail.Runs[0].Final != [4]int{2, 0, 1, 1} {
		t.Errorf("final = %v", detail.Runs[0].Final)
	}

	if rr := get(t, h, "/api/v1/experiments/ffffffff", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown id: code = %d, want 404", rr.Code)
	}

	var counts struct {
		Rows [][5]int `json:"rows"`
	}
	get(t, h, fmt.Sprintf("/api/v1/runs/%d/counts", detail.Runs[0].ID), &counts)
	want := [][5]int{{0, 3, 0, 1, 0}, {1, 2, 1, 1, 0}, {2, 2, 0, 1, 1}}
	if len(counts.Rows) != len(want) {
		t.Fatalf("rows = %v", counts.Rows)
	}
	for i := range want {
		if counts.Rows[i] != want[i] {
			t.Errorf("row %d = %v, want %v", i, counts.Rows[i], want[i])
		}
	}

	get(t, h, fmt.Sprintf("/api/v1/runs/%d/counts?every=2", detail.Runs[0].ID), &counts)
	if len(counts.Rows) != 2 || counts.Rows[1][0] != 2 {
		t.Errorf("strided rows = %v", counts.Rows)
	}

	var events []engine.Exposure
	get(t, h, fmt.Sprintf("/api/v1/runs/%d/exposures", detail.Runs[0].ID), &events)
	if len(events) != 1 || events[0].Agent != agents.AgentID(2) {
		t.Errorf("exposures = %+v", events)
	}
}

func TestMeanCurveEndpoint(t *testing.T) {
	s, id := newTestServer(t)

	var mean struct {
		Runs int          `json:"runs"`
		Rows [][5]float64 `json:"rows"`
	}
	if rr := get(t, s.Handler(), "/api/v1/experiments/"+id+"/mean", &mean); rr.Code != http.StatusOK {
		t.Fatalf("code = %d", rr.Code)
	}
	if mean.Runs != 2 || len(mean.Rows) != 3 {
		t.Fatalf("mean = %+v", mean)
	}
	if mean.Rows[2] != [5]float64{2, 2.5, 0, 0.5, 1} {
		t.Errorf("row 2 = %v", mean.Rows[2])
	}
}

func TestBadRequests(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	tests := []struct {
		path string
		code int
	}{
		{"/api/v1/runs/abc/counts", http.StatusBadRequest},
		{"/api/v1/runs/1/counts?every=0", http.StatusBadRequest},
		{"/api/v1/runs/999/counts", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rr := get(t, h, tt.path, nil); rr.Code != tt.code {
			t.Errorf("GET %s: code = %d, want %d", tt.path, rr.Code, tt.code)
		}
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/experiments", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST: code = %d, want 405", rr.Code)
	}
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Errorf("preflight code = %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("allow origin = %q", got)
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("a") {
		t.Error("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Error("other IPs have their own bucket")
	}
	if ra := rl.RetryAfter("a"); ra < 1 || ra > 61 {
		t.Errorf("RetryAfter = %d", ra)
	}

	now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Error("window reset should allow again")
	}
	now = now.Add(3 * time.Minute)
	rl.cleanup()
	if len(rl.buckets) != 0 {
		t.Errorf("cleanup left %d buckets", len(rl.buckets))
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	s, _ := newTestServer(t)
	s.CurveRate = 1
	h := s.Handler()

	req := func() int {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/runs/1/counts", nil)
		r.Header.Set("X-Forwarded-For", "10.0.0.9, 10.0.0.1")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, r)
		return rr.Code
	}
	if code := req(); code == http.StatusTooManyRequests {
		t.Fatal("first request limited")
	}
	if code := req(); code != http.StatusTooManyRequests {
		t.Errorf("second request code = %d, want 429", code)
	}
}
