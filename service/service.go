// Package service implements the request-level operations of §6: the
// same validation the original Python endpoints perform (dimension/shape
// checks, empty-store checks), delegating everything else to the
// nanovec facade. It intentionally carries no net/http and no
// load-bearing JSON tags — transport is an excluded surface — but its
// struct field names mirror the wire shape described in §6 so a
// caller-supplied HTTP layer has an obvious mapping.
package service

import (
	"context"
	"fmt"

	"github.com/nanovec/nanovec"
)

// Service wraps a nanovec.Engine with request/response validation.
type Service struct {
	engine      *nanovec.Engine
	defaultTopK int
}

// New wraps engine, using defaultTopK when a SearchRequest omits TopK.
func New(engine *nanovec.Engine, defaultTopK int) *Service {
	if defaultTopK <= 0 {
		defaultTopK = 10
	}
	return &Service{engine: engine, defaultTopK: defaultTopK}
}

// SearchRequest mirrors the search endpoint's request body.
type SearchRequest struct {
	Vector   []float32
	TopK     int
	UseIndex bool
	UseAgent bool
	Metric   nanovec.Metric
}

// SearchResult is one ranked hit in a SearchResponse.
type SearchResult struct {
	ID    int64
	Score float32
}

// SearchResponse mirrors the search endpoint's response body.
type SearchResponse struct {
	Results      []SearchResult
	LatencyMs    float64
	Strategy     string
}

// Search validates req and runs a top-k query. An empty vector is
// rejected; an empty store yields an empty result list, not an error.
func (s *Service) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	if len(req.Vector) == 0 {
		return SearchResponse{}, fmt.Errorf("service: search: %w", nanovec.ErrEmptyInput)
	}
	if dim := s.engine.Dimension(); dim != 0 && len(req.Vector) != dim {
		return SearchResponse{}, fmt.Errorf("service: search: expected dimension %d, got %d: %w", dim, len(req.Vector), nanovec.ErrShapeMismatch)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.defaultTopK
	}

	out := s.engine.Search(ctx, req.Vector, topK, req.Metric, req.UseIndex, req.UseAgent)

	results := make([]SearchResult, len(out.Results))
	for i, r := range out.Results {
		results[i] = SearchResult{ID: r.ID, Score: r.Score}
	}
	return SearchResponse{Results: results, LatencyMs: out.LatencyMs, Strategy: out.StrategyName}, nil
}

// IndexAddRequest mirrors the index-add endpoint's request body: a 2-D
// batch of vectors and optional caller-supplied ids.
type IndexAddRequest struct {
	Vectors [][]float32
	IDs     []int64
}

// IndexAddResponse mirrors the index-add endpoint's response body.
type IndexAddResponse struct {
	Count      int
	TotalCount int
	Message    string
}

// IndexAdd validates req (non-empty, rectangular — "400 on non-2-D
// input" in §6 terms) and appends the batch, assigning the new rows
// into IVF cells when the index is already trained.
func (s *Service) IndexAdd(req IndexAddRequest) (IndexAddResponse, error) {
	if len(req.Vectors) == 0 {
		return IndexAddResponse{}, fmt.Errorf("service: index_add: %w", nanovec.ErrEmptyInput)
	}
	d := len(req.Vectors[0])
	for _, v := range req.Vectors {
		if len(v) != d {
			return IndexAddResponse{}, fmt.Errorf("service: index_add: ragged vectors: %w", nanovec.ErrShapeMismatch)
		}
	}
	if req.IDs != nil && len(req.IDs) != len(req.Vectors) {
		return IndexAddResponse{}, fmt.Errorf("service: index_add: ids length %d does not match vectors length %d: %w", len(req.IDs), len(req.Vectors), nanovec.ErrShapeMismatch)
	}

	added, total, err := s.engine.AddVectors(req.Vectors, req.IDs)
	if err != nil {
		return IndexAddResponse{}, fmt.Errorf("service: index_add: %w", err)
	}

	return IndexAddResponse{
		Count:      added,
		TotalCount: total,
		Message:    fmt.Sprintf("added %d vectors", added),
	}, nil
}

// IndexTrainRequest mirrors the index-train endpoint's query params.
type IndexTrainRequest struct {
	NCells int
}

// IndexTrain validates the store is non-empty ("400 when the store is
// empty" in §6 terms) and trains the IVF index. NCells<=0 defaults to
// 100.
func (s *Service) IndexTrain(ctx context.Context, req IndexTrainRequest) error {
	if s.engine.Count() == 0 {
		return fmt.Errorf("service: index_train: %w", nanovec.ErrEmptyStore)
	}
	nCells := req.NCells
	if nCells <= 0 {
		nCells = 100
	}
	if err := s.engine.Train(ctx, nCells); err != nil {
		return fmt.Errorf("service: index_train: %w", err)
	}
	return nil
}

// IndexResetRequest mirrors the index-reset endpoint (no parameters).
type IndexResetRequest struct{}

// IndexReset clears the store and the IVF cells, marking the index
// untrained.
func (s *Service) IndexReset(IndexResetRequest) error {
	if err := s.engine.ResetIndex(); err != nil {
		return fmt.Errorf("service: index_reset: %w", err)
	}
	return nil
}

// AgentArmStat mirrors one arm's entry in an AgentStatsResponse.
type AgentArmStat struct {
	Pulls        int
	AvgReward    float64
	TotalReward  float64
	AvgLatencyMs float64
}

// AgentStatsResponse mirrors the agent-stats endpoint's response body.
type AgentStatsResponse struct {
	Algorithm  string
	Epsilon    float64
	TotalPulls int
	Arms       map[string]AgentArmStat
}

// AgentStats delegates to the agent's get_stats payload.
func (s *Service) AgentStats() AgentStatsResponse {
	stats := s.engine.AgentStats()
	arms := make(map[string]AgentArmStat, len(stats.Arms))
	for name, a := range stats.Arms {
		arms[name] = AgentArmStat{
			Pulls:        a.Pulls,
			AvgReward:    a.AvgReward,
			TotalReward:  a.TotalReward,
			AvgLatencyMs: a.AvgLatencyMs,
		}
	}
	return AgentStatsResponse{
		Algorithm:  stats.Algorithm,
		Epsilon:    stats.Epsilon,
		TotalPulls: stats.TotalPulls,
		Arms:       arms,
	}
}

// AgentResetRequest mirrors the agent-reset endpoint (no parameters).
type AgentResetRequest struct{}

// AgentReset clears agent statistics and removes the snapshot file.
func (s *Service) AgentReset(AgentResetRequest) error {
	if err := s.engine.ResetAgent(); err != nil {
		return fmt.Errorf("service: agent_reset: %w", err)
	}
	return nil
}
