// Package nanovec is the composition root for the embedded vector
// similarity search engine: a persistent vector store, an IVF index, a
// search orchestrator and an adaptive multi-armed-bandit query planner.
//
// Deletion or in-place update of stored vectors, concurrent multi-writer
// ingestion, distributed sharding, exact recall guarantees for the IVF
// path, product quantization and GPU execution are all out of scope.
package nanovec

import (
	"context"
	"fmt"

	"github.com/nanovec/nanovec/config"
	"github.com/nanovec/nanovec/internal/agent"
	"github.com/nanovec/nanovec/internal/ivfindex"
	"github.com/nanovec/nanovec/internal/obs"
	"github.com/nanovec/nanovec/internal/search"
	"github.com/nanovec/nanovec/internal/store"
)

// Engine owns the store, the IVF index and the adaptive agent for one data
// directory. It is safe for concurrent read-mostly use (Search,
// AgentStats) as long as writer paths (AddVectors, Train, Reset, agent
// updates) are serialized by the caller — see §5.
type Engine struct {
	dir string

	store        *store.Store
	index        *ivfindex.Index
	agent        *agent.Agent
	orchestrator *search.Orchestrator
	metrics      *obs.Metrics

	defaultTopK int
}

// New opens (or lazily prepares to create) an engine rooted at dir. Any
// existing vectors.npy/meta.json/centroids.npy/indexer_state.json/
// agent_state.json under dir are loaded; a directory with none of these
// files yields a fresh, uncreated engine.
func New(dir string, opts ...Option) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	s, err := store.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("nanovec: open store: %w", err)
	}

	idx := ivfindex.New(dir, cfg.ivfMaxCodes)
	idx.Load()

	ag := agent.New(dir, cfg.agentAlgorithm, cfg.agentEpsilon)
	ag.Load()

	return &Engine{
		dir:          dir,
		store:        s,
		index:        idx,
		agent:        ag,
		orchestrator: search.New(s, idx),
		metrics:      obs.NewMetrics(),
		defaultTopK:  cfg.defaultTopK,
	}, nil
}

// NewFromConfig wires an Engine from a loaded config.Config, applying its
// DefaultTopK on top of any explicitly passed opts (which take precedence).
func NewFromConfig(cfg *config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("nanovec: invalid config: %w", err)
	}
	allOpts := append([]Option{WithDefaultTopK(cfg.DefaultTopK)}, opts...)
	return New(cfg.DataDir, allOpts...)
}

// AddVectors appends vecs (and ids, when supplied) to the store. If the
// IVF index is already trained, the new rows are also batch-assigned into
// cells so that a subsequent search sees them without retraining.
func (e *Engine) AddVectors(vecs [][]float32, ids []int64) (int, int, error) {
	if len(vecs) == 0 {
		return 0, e.store.Count(), fmt.Errorf("nanovec: add_vectors: %w", ErrEmptyInput)
	}

	baseIndex := e.store.Count()
	if err := e.store.AddVectors(vecs, ids); err != nil {
		return 0, e.store.Count(), err
	}
	e.metrics.IngestBatches.Inc()
	e.metrics.VectorsIngested.Add(float64(len(vecs)))

	if e.index.Trained() {
		norms := e.store.GetNorms()[baseIndex : baseIndex+len(vecs)]
		if err := e.index.AddVectors(vecs, baseIndex, norms); err != nil {
			return len(vecs), e.store.Count(), err
		}
	}

	return len(vecs), e.store.Count(), nil
}

// Train builds the IVF index over the current vector population with
// nCells coarse cells.
func (e *Engine) Train(ctx context.Context, nCells int) error {
	if e.store.Count() == 0 {
		return fmt.Errorf("nanovec: train: %w", ErrEmptyStore)
	}
	e.metrics.TrainCalls.Inc()
	return e.index.Train(ctx, e.store.GetVectors(), nCells)
}

// Search runs a top-k query. When useAgent is true, the adaptive agent
// chooses the search configuration and its name is reported in
// SearchOutcome.StrategyName.
func (e *Engine) Search(ctx context.Context, query []float32, topK int, metric Metric, useIndex, useAgent bool) SearchOutcome {
	if topK <= 0 {
		topK = e.defaultTopK
	}
	e.metrics.SearchQueries.Inc()

	var ag *agent.Agent
	if useAgent {
		ag = e.agent
	}
	out := e.orchestrator.Search(ctx, query, topK, metric, useIndex, useAgent, ag)
	e.metrics.SearchLatency.Observe(out.LatencyMs)
	if useAgent {
		e.metrics.AgentUpdates.Inc()
	}

	results := make([]SearchResult, len(out.Results))
	for i, r := range out.Results {
		results[i] = SearchResult{ID: r.ID, Score: r.Score}
	}
	return SearchOutcome{Results: results, LatencyMs: out.LatencyMs, StrategyName: out.StrategyName}
}

// AgentStats returns the adaptive agent's current report.
func (e *Engine) AgentStats() AgentStats {
	stats := e.agent.GetStats()
	arms := make(map[string]ArmStat, len(stats.Arms))
	for name, r := range stats.Arms {
		arms[name] = ArmStat{
			Pulls:        r.Pulls,
			AvgReward:    r.AvgReward,
			TotalReward:  r.TotalReward,
			AvgLatencyMs: r.AvgLatencyMs,
		}
	}
	return AgentStats{
		Algorithm:  string(stats.Algorithm),
		Epsilon:    stats.Epsilon,
		TotalPulls: stats.TotalPulls,
		Arms:       arms,
	}
}

// ResetAgent clears the agent's statistics and removes its snapshot file.
func (e *Engine) ResetAgent() error {
	return e.agent.Reset()
}

// ResetIndex clears the store and the IVF cells, returning both to their
// uncreated/untrained state.
func (e *Engine) ResetIndex() error {
	if err := e.index.Reset(); err != nil {
		return err
	}
	return e.store.Reset()
}

// Count returns the number of vectors currently stored.
func (e *Engine) Count() int {
	return e.store.Count()
}

// Dimension returns the fixed vector width, or 0 if nothing has been
// ingested yet.
func (e *Engine) Dimension() int {
	return e.store.Dimension()
}

// IndexTrained reports whether the IVF index has been trained.
func (e *Engine) IndexTrained() bool {
	return e.index.Trained()
}
