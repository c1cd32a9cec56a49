package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/talgya/seir-sim/internal/agents"
	"github.com/talgya/seir-sim/internal/config"
	"github.com/talgya/seir-sim/internal/engine"
	"github.com/talgya/seir-sim/internal/experiment"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "results", "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleOutcomes() []experiment.Outcome {
	ok := &engine.RunResult{
		Run: 0, Seed: 5, NPeople: 4,
		Initial: engine.Counts{S: 3, I: 1},
		Counts: []engine.Counts{
			{S: 2, E: 1, I: 1},
			{S: 2, I: 2},
			{S: 2, I: 1, R: 1},
		},
		Exposures: []engine.Exposure{
			{Tick: 1, Agent: agents.AgentID(3), Source: agents.AgentID(1), X: 12.25, Y: 40.5},
		},
	}
	return []experiment.Outcome{
		{Run: 0, Seed: 5, Result: ok, Elapsed: 1500 * time.Millisecond},
		{Run: 1, Seed: 6, Err: &agents.ConsistencyError{AgentID: 2, From: agents.Removed, To: agents.Exposed, Tick: 9}},
	}
}

func TestSaveAndLoadExperiment(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	cfg := config.Default()
	cfg.RunName = "store-test"
	cfg.NRuns = 2
	rec, err := NewRecord(cfg, "campus", "abc123")
	if err != nil {
		t.Fatalf("NewRecord() error = %v", err)
	}
	if err := db.SaveExperiment(ctx, rec, sampleOutcomes()); err != nil {
		t.Fatalf("SaveExperiment() error = %v", err)
	}

	list, err := db.ListExperiments(ctx)
	if err != nil {
		t.Fatalf("ListExperiments() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != rec.ID || list[0].Name != "store-test" || list[0].Failed != 1 {
		t.Fatalf("unexpected experiments: %+v", list)
	}
	stored, err := list[0].Config()
	if err != nil {
		t.Fatalf("Config() error = %v", err)
	}
	if stored.RunName != "store-test" || stored.NRuns != 2 {
		t.Errorf("stored config = %+v", stored)
	}

	got, err := db.GetExperiment(ctx, rec.ID[:8])
	if err != nil || got.ID != rec.ID {
		t.Fatalf("GetExperiment(prefix) = %+v, %v", got, err)
	}

	runs, err := db.ListRuns(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].Status != StatusOK || runs[0].PeakInfectious != 2 || runs[0].PeakTick != 2 || runs[0].Ticks != 3 || runs[0].ElapsedMS != 1500 {
		t.Errorf("unexpected ok run: %+v", runs[0])
	}
	if runs[1].Status != StatusFailed || runs[1].Error == "" {
		t.Errorf("unexpected failed run: %+v", runs[1])
	}

	counts, err := db.LoadRunCounts(ctx, runs[0].ID)
	if err != nil {
		t.Fatalf("LoadRunCounts() error = %v", err)
	}
	want := append([]engine.Counts{{S: 3, I: 1}}, sampleOutcomes()[0].Result.Counts...)
	if !reflect.DeepEqual(counts, want) {
		t.Errorf("counts = %v, want %v", counts, want)
	}

	exposures, err := db.LoadExposures(ctx, runs[0].ID)
	if err != nil {
		t.Fatalf("LoadExposures() error = %v", err)
	}
	if !reflect.DeepEqual(exposures, sampleOutcomes()[0].Result.Exposures) {
		t.Errorf("exposures = %+v", exposures)
	}

	failedCounts, err := db.LoadRunCounts(ctx, runs[1].ID)
	if err != nil || len(failedCounts) != 0 {
		t.Errorf("failed run stored %d count rows (err %v), want none", len(failedCounts), err)
	}
}

func TestDeleteExperimentCascades(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rec, _ := NewRecord(config.Default(), "campus", "k")
	if err := db.SaveExperiment(ctx, rec, sampleOutcomes()); err != nil {
		t.Fatal(err)
	}
	runs, _ := db.ListRuns(ctx, rec.ID)

	if err := db.DeleteExperiment(ctx, rec.ID); err != nil {
		t.Fatalf("DeleteExperiment() error = %v", err)
	}
	if _, err := db.GetExperiment(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	counts, _ := db.LoadRunCounts(ctx, runs[0].ID)
	if len(counts) != 0 {
		t.Errorf("%d count rows survived the delete", len(counts))
	}
	if err := db.DeleteExperiment(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestMeta(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.GetMeta("heatmap_key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing key, got %v", err)
	}
	if err := db.SaveMeta("heatmap_key", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveMeta("heatmap_key", "v2"); err != nil {
		t.Fatal(err)
	}
	if v, err := db.GetMeta("heatmap_key"); err != nil || v != "v2" {
		t.Errorf("GetMeta() = %q, %v, want v2", v, err)
	}
}
