package service

import (
	"context"
	"errors"
	"testing"

	"github.com/nanovec/nanovec"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	eng, err := nanovec.New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return New(eng, 10)
}

func TestSearchRejectsEmptyVector(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Search(context.Background(), SearchRequest{})
	if !errors.Is(err, nanovec.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestSearchRejectsDimensionMismatch(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.IndexAdd(IndexAddRequest{Vectors: [][]float32{{1, 0}, {0, 1}}})
	if err != nil {
		t.Fatalf("IndexAdd: %v", err)
	}
	_, err = svc.Search(context.Background(), SearchRequest{Vector: []float32{1, 2, 3}})
	if !errors.Is(err, nanovec.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestSearchOnEmptyStoreReturnsEmptyResults(t *testing.T) {
	svc := newTestService(t)
	resp, err := svc.Search(context.Background(), SearchRequest{Vector: []float32{1, 0}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("expected empty results, got %d", len(resp.Results))
	}
}

func TestIndexAddRejectsEmptyBatch(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.IndexAdd(IndexAddRequest{})
	if !errors.Is(err, nanovec.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestIndexAddRejectsRaggedVectors(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.IndexAdd(IndexAddRequest{Vectors: [][]float32{{1, 0}, {0, 1, 2}}})
	if !errors.Is(err, nanovec.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestIndexAddRejectsMismatchedIDsLength(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.IndexAdd(IndexAddRequest{Vectors: [][]float32{{1, 0}, {0, 1}}, IDs: []int64{1}})
	if !errors.Is(err, nanovec.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestIndexTrainRejectsEmptyStore(t *testing.T) {
	svc := newTestService(t)
	err := svc.IndexTrain(context.Background(), IndexTrainRequest{NCells: 4})
	if !errors.Is(err, nanovec.ErrEmptyStore) {
		t.Fatalf("expected ErrEmptyStore, got %v", err)
	}
}

func TestEndToEndAddTrainSearch(t *testing.T) {
	svc := newTestService(t)

	vecs := make([][]float32, 200)
	for i := range vecs {
		vecs[i] = []float32{float32(i), float32(i) * 0.37}
	}
	if _, err := svc.IndexAdd(IndexAddRequest{Vectors: vecs}); err != nil {
		t.Fatalf("IndexAdd: %v", err)
	}

	if err := svc.IndexTrain(context.Background(), IndexTrainRequest{NCells: 8}); err != nil {
		t.Fatalf("IndexTrain: %v", err)
	}

	flatResp, err := svc.Search(context.Background(), SearchRequest{Vector: []float32{50, 18.5}, TopK: 5, UseIndex: false})
	if err != nil {
		t.Fatalf("flat search: %v", err)
	}
	idxResp, err := svc.Search(context.Background(), SearchRequest{Vector: []float32{50, 18.5}, TopK: 5, UseIndex: true})
	if err != nil {
		t.Fatalf("index search: %v", err)
	}
	if len(flatResp.Results) != 5 || len(idxResp.Results) != 5 {
		t.Fatalf("expected 5 results each, got %d and %d", len(flatResp.Results), len(idxResp.Results))
	}

	if err := svc.IndexReset(IndexResetRequest{}); err != nil {
		t.Fatalf("IndexReset: %v", err)
	}
	resp, err := svc.Search(context.Background(), SearchRequest{Vector: []float32{1, 1}})
	if err != nil {
		t.Fatalf("search after reset: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("expected empty results after reset, got %d", len(resp.Results))
	}
}

func TestAgentStatsAndReset(t *testing.T) {
	svc := newTestService(t)

	vecs := [][]float32{{1, 0}, {0, 1}, {1, 1}}
	if _, err := svc.IndexAdd(IndexAddRequest{Vectors: vecs}); err != nil {
		t.Fatalf("IndexAdd: %v", err)
	}

	if _, err := svc.Search(context.Background(), SearchRequest{Vector: []float32{1, 0}, UseAgent: true}); err != nil {
		t.Fatalf("search with agent: %v", err)
	}

	stats := svc.AgentStats()
	if stats.TotalPulls != 1 {
		t.Fatalf("expected 1 total pull, got %d", stats.TotalPulls)
	}
	if len(stats.Arms) != 4 {
		t.Fatalf("expected 4 arms, got %d", len(stats.Arms))
	}

	if err := svc.AgentReset(AgentResetRequest{}); err != nil {
		t.Fatalf("AgentReset: %v", err)
	}
	stats = svc.AgentStats()
	if stats.TotalPulls != 0 {
		t.Fatalf("expected 0 total pulls after reset, got %d", stats.TotalPulls)
	}
}
