package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/charleslwang/Lumara/internal"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun() (internal.RefinementRequest, *internal.RefinementResult) {
	req := internal.RefinementRequest{
		ID:            uuid.New().String(),
		Prompt:        "Write a haiku about the ocean",
		InitialOutput: "Ocean waves crash.",
		ModelID:       "gemini-2.5-flash",
		MaxIterations: 2,
		Timestamp:     time.Now().UTC(),
	}
	res := &internal.RefinementResult{
		RefinedOutput: "Salt wind combs the swell.",
		Iterations: []internal.IterationRecord{
			{
				Index:    1,
				Solution: "Waves fold into foam.",
				Critique: "Add sensory detail.",
				Score: internal.ScoreReport{
					Overall: 5.2,
					Details: map[string]float64{"Clarity and specificity": 5.2},
				},
				Timestamp: time.Now().UTC(),
			},
			{
				Index:    2,
				Solution: "Salt wind combs the swell.",
				Critique: "Stronger imagery now.",
				Score: internal.ScoreReport{
					Overall: 7.8,
					Details: map[string]float64{"Clarity and specificity": 7.8},
				},
				Timestamp: time.Now().UTC(),
			},
		},
		Scores: internal.ScoreReport{
			Overall: 7.8,
			Details: map[string]float64{"Clarity and specificity": 7.8},
		},
	}
	return req, res
}

func TestStore_SaveAndGetRun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	req, res := sampleRun()
	if err := s.SaveRun(ctx, req, res); err != nil {
		t.Fatalf("failed to save run: %v", err)
	}

	entry, loaded, err := s.GetRun(ctx, req.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}

	if entry.Prompt != req.Prompt {
		t.Errorf("expected prompt %q, got %q", req.Prompt, entry.Prompt)
	}
	if entry.ModelID != req.ModelID {
		t.Errorf("expected model %q, got %q", req.ModelID, entry.ModelID)
	}
	if entry.Overall != 7.8 {
		t.Errorf("expected overall 7.8, got %g", entry.Overall)
	}
	if entry.IterationCount != 2 {
		t.Errorf("expected 2 iterations, got %d", entry.IterationCount)
	}

	// The stored session restores the full result losslessly.
	if loaded.RefinedOutput != res.RefinedOutput {
		t.Errorf("expected refined output %q, got %q", res.RefinedOutput, loaded.RefinedOutput)
	}
	if len(loaded.Iterations) != len(res.Iterations) {
		t.Fatalf("expected %d iteration records, got %d", len(res.Iterations), len(loaded.Iterations))
	}
	for i, rec := range loaded.Iterations {
		want := res.Iterations[i]
		if rec.Index != want.Index || rec.Solution != want.Solution || rec.Critique != want.Critique {
			t.Errorf("record %d does not round-trip: got %+v", i, rec)
		}
		if math.Abs(rec.Score.Overall-want.Score.Overall) > 1e-9 {
			t.Errorf("record %d: expected overall %g, got %g", i, want.Score.Overall, rec.Score.Overall)
		}
	}
}

func TestStore_GetRun_StoppedSurvivesRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	req, res := sampleRun()
	res.Stopped = true
	if err := s.SaveRun(ctx, req, res); err != nil {
		t.Fatalf("failed to save run: %v", err)
	}

	_, loaded, err := s.GetRun(ctx, req.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if !loaded.Stopped {
		t.Error("expected stopped flag to survive the round trip")
	}
}

func TestStore_GetRun_NotFound(t *testing.T) {
	s := testStore(t)

	if _, _, err := s.GetRun(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestStore_SaveRun_NormalizesPrompt(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	req, res := sampleRun()
	req.Prompt = "  Write a haiku about the ocean \n"
	if err := s.SaveRun(ctx, req, res); err != nil {
		t.Fatalf("failed to save run: %v", err)
	}

	entry, _, err := s.GetRun(ctx, req.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if entry.Prompt != "Write a haiku about the ocean" {
		t.Errorf("expected normalized prompt, got %q", entry.Prompt)
	}
}

func TestStore_ListRuns(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		req, res := sampleRun()
		req.Timestamp = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		if err := s.SaveRun(ctx, req, res); err != nil {
			t.Fatalf("failed to save run %d: %v", i, err)
		}
	}

	entries, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].CreatedAt.After(entries[i-1].CreatedAt) {
			t.Error("expected runs ordered most recent first")
		}
	}
}

func TestStore_DeleteRun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	req, res := sampleRun()
	if err := s.SaveRun(ctx, req, res); err != nil {
		t.Fatalf("failed to save run: %v", err)
	}

	if err := s.DeleteRun(ctx, req.ID); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}
	if _, _, err := s.GetRun(ctx, req.ID); err == nil {
		t.Error("expected deleted run to be gone")
	}
}

func TestStore_ClearRuns(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		req, res := sampleRun()
		if err := s.SaveRun(ctx, req, res); err != nil {
			t.Fatalf("failed to save run %d: %v", i, err)
		}
	}

	n, err := s.ClearRuns(ctx)
	if err != nil {
		t.Fatalf("failed to clear runs: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 cleared, got %d", n)
	}

	entries, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty history, got %d entries", len(entries))
	}
}

func TestStore_Stats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	overalls := []float64{5.0, 9.0}
	for _, overall := range overalls {
		req, res := sampleRun()
		res.Scores.Overall = overall
		if err := s.SaveRun(ctx, req, res); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("failed to get stats: %v", err)
	}
	if stats.TotalRuns != 2 {
		t.Errorf("expected 2 runs, got %d", stats.TotalRuns)
	}
	if math.Abs(stats.AverageOverall-7.0) > 1e-9 {
		t.Errorf("expected average 7.0, got %g", stats.AverageOverall)
	}
	if stats.BestOverall != 9.0 {
		t.Errorf("expected best 9.0, got %g", stats.BestOverall)
	}
	if stats.TotalIterations != 4 {
		t.Errorf("expected 4 total iterations, got %d", stats.TotalIterations)
	}
}

func TestStore_Stats_Empty(t *testing.T) {
	s := testStore(t)

	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("failed to get stats: %v", err)
	}
	if stats.TotalRuns != 0 || stats.BestOverall != 0 {
		t.Errorf("expected zeroed stats, got %+v", stats)
	}
}
