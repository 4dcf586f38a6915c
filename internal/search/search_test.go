package search

import (
	"context"
	"testing"

	"github.com/nanovec/nanovec/internal/agent"
	"github.com/nanovec/nanovec/internal/ivfindex"
	"github.com/nanovec/nanovec/internal/store"
)

func newOrchestrator(t *testing.T) (*Orchestrator, *store.Store, *ivfindex.Index) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	idx := ivfindex.New(dir, 0)
	return New(s, idx), s, idx
}

func TestEmptyStoreReturnsEmptyResults(t *testing.T) {
	o, _, _ := newOrchestrator(t)
	out := o.Search(context.Background(), []float32{1, 0}, 1, L2, false, false, nil)
	if len(out.Results) != 0 {
		t.Fatalf("expected no results from empty store, got %v", out.Results)
	}
}

func TestScenario1BasicL2Search(t *testing.T) {
	o, s, _ := newOrchestrator(t)
	if err := s.AddVectors([][]float32{{1, 0}, {0, 1}}, []int64{1, 2}); err != nil {
		t.Fatalf("AddVectors: %v", err)
	}

	out := o.Search(context.Background(), []float32{1, 0}, 1, L2, false, false, nil)
	if len(out.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out.Results))
	}
	if out.Results[0].ID != 1 {
		t.Fatalf("expected id 1, got %d", out.Results[0].ID)
	}
	if out.Results[0].Score > 1e-4 {
		t.Fatalf("expected score ~0, got %v", out.Results[0].Score)
	}
}

func TestCosineRanksDescending(t *testing.T) {
	o, s, _ := newOrchestrator(t)
	if err := s.AddVectors([][]float32{{1, 0}, {0.9, 0.1}, {0, 1}}, []int64{10, 11, 12}); err != nil {
		t.Fatalf("AddVectors: %v", err)
	}

	out := o.Search(context.Background(), []float32{1, 0}, 3, Cosine, false, false, nil)
	if out.Results[0].ID != 10 {
		t.Fatalf("expected closest cosine match first, got %d", out.Results[0].ID)
	}
	if out.Results[len(out.Results)-1].ID != 12 {
		t.Fatalf("expected farthest cosine match last, got %d", out.Results[len(out.Results)-1].ID)
	}
	for i := 1; i < len(out.Results); i++ {
		if out.Results[i].Score > out.Results[i-1].Score {
			t.Fatalf("expected descending cosine scores, got %v", out.Results)
		}
	}
}

func TestIVFSearchMatchesFlatWhenBudgetCoversEverything(t *testing.T) {
	o, s, idx := newOrchestrator(t)
	data := make([][]float32, 300)
	for i := range data {
		data[i] = []float32{float32(i), float32(i) * 0.37, float32(i) * 1.41}
	}
	if err := s.AddVectors(data, nil); err != nil {
		t.Fatalf("AddVectors: %v", err)
	}
	if err := idx.Train(context.Background(), s.GetVectors(), 10); err != nil {
		t.Fatalf("Train: %v", err)
	}
	idx.SetMaxCodes(1_000_000)

	query := []float32{5, 5, 5}
	flat := o.Search(context.Background(), query, 5, L2, false, false, nil)
	ivf := o.Search(context.Background(), query, 5, L2, true, false, nil)

	if len(flat.Results) != len(ivf.Results) {
		t.Fatalf("expected flat and IVF result counts to match, got %d vs %d", len(flat.Results), len(ivf.Results))
	}
	for i := range flat.Results {
		if flat.Results[i].ID != ivf.Results[i].ID {
			t.Fatalf("expected IVF search to reduce to flat when max_codes covers the whole store, mismatch at %d: %d vs %d", i, flat.Results[i].ID, ivf.Results[i].ID)
		}
	}
}

func TestAgentSelectedArmReportedAsStrategy(t *testing.T) {
	o, s, _ := newOrchestrator(t)
	if err := s.AddVectors([][]float32{{1, 0}, {0, 1}}, nil); err != nil {
		t.Fatalf("AddVectors: %v", err)
	}
	ag := agent.New(t.TempDir(), agent.EpsilonGreedy, 0.0)

	out := o.Search(context.Background(), []float32{1, 0}, 1, L2, false, true, ag)
	if out.StrategyName == "" {
		t.Fatalf("expected a non-empty strategy name when use_agent is set")
	}
	stats := ag.GetStats()
	if stats.TotalPulls != 1 {
		t.Fatalf("expected the agent to have recorded exactly one pull, got %d", stats.TotalPulls)
	}
}

func TestDistanceAgainstKnownVectorWithTinyAndHugeScale(t *testing.T) {
	o, s, _ := newOrchestrator(t)
	if err := s.AddVectors([][]float32{{1e-10, 0}, {1e10, 0}}, nil); err != nil {
		t.Fatalf("AddVectors: %v", err)
	}
	out := o.Search(context.Background(), []float32{1e-10, 0}, 2, L2, false, false, nil)
	if out.Results[0].Score > 1e-6 {
		t.Fatalf("expected ~0 distance for the near-identical vector first, got %v", out.Results[0].Score)
	}
	if out.Results[1].Score <= 1e9 {
		t.Fatalf("expected distance > 1e9 for the far vector, got %v", out.Results[1].Score)
	}
}

func TestStableTieBreakByPosition(t *testing.T) {
	o, s, _ := newOrchestrator(t)
	// Three rows equidistant from the query; stable sort must preserve
	// row-position order among ties.
	if err := s.AddVectors([][]float32{{1, 0}, {0, 1}, {-1, 0}}, []int64{100, 101, 102}); err != nil {
		t.Fatalf("AddVectors: %v", err)
	}
	out := o.Search(context.Background(), []float32{0, 0}, 3, L2, false, false, nil)
	if out.Results[0].ID != 100 || out.Results[1].ID != 101 || out.Results[2].ID != 102 {
		t.Fatalf("expected tie-break to preserve ascending row-position order, got %v", out.Results)
	}
}

func TestDimensionFixedAtFirstInsertThenResettable(t *testing.T) {
	_, s, idx := newOrchestrator(t)
	if err := s.AddVectors([][]float32{{1, 2}}, nil); err != nil {
		t.Fatalf("AddVectors: %v", err)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := idx.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := s.AddVectors([][]float32{{1, 2, 3}}, nil); err != nil {
		t.Fatalf("second AddVectors after reset: %v", err)
	}
	if s.Dimension() != 3 {
		t.Fatalf("expected dimension fixed to 3 after reset+reinsert, got %d", s.Dimension())
	}
}
