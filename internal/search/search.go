// Package search implements the orchestrator of §4.E: it composes the
// vector store, the IVF index and the distance kernels into top-k queries,
// optionally consulting the adaptive agent to choose a search
// configuration.
package search

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/nanovec/nanovec/internal/agent"
	"github.com/nanovec/nanovec/internal/distance"
	"github.com/nanovec/nanovec/internal/ivfindex"
	"github.com/nanovec/nanovec/internal/store"
)

// Metric selects the scoring function.
type Metric int

const (
	L2 Metric = iota
	Cosine
)

const defaultNProbe = 10

// Result is one ranked hit.
type Result struct {
	ID    int64
	Score float32
}

// Outcome is the full return value of a search: the ranked results, the
// measured latency and, when the agent chose the configuration, the name
// of the arm it picked.
type Outcome struct {
	Results      []Result
	LatencyMs    float64
	StrategyName string
}

// Orchestrator composes a store, an IVF index and (optionally) an adaptive
// agent into top-k queries.
type Orchestrator struct {
	Store *store.Store
	Index *ivfindex.Index
}

// New returns an orchestrator over s and idx.
func New(s *store.Store, idx *ivfindex.Index) *Orchestrator {
	return &Orchestrator{Store: s, Index: idx}
}

// Search runs the 8-step algorithm of §4.E. ag may be nil when useAgent is
// false.
func (o *Orchestrator) Search(ctx context.Context, query []float32, topK int, metric Metric, useIndex, useAgent bool, ag *agent.Agent) Outcome {
	start := time.Now()

	count := o.Store.Count()
	if count == 0 {
		return Outcome{Results: nil, LatencyMs: elapsedMs(start)}
	}

	nprobe := defaultNProbe
	var maxCodesOverride *int
	strategyName := ""

	if useAgent {
		arm := ag.SelectArm()
		useIndex = arm.UseIndex
		strategyName = arm.Name
		if arm.UseIndex {
			nprobe = arm.NProbe
			mc := arm.MaxCodes
			maxCodesOverride = &mc
		}
	}

	var candidatePositions []int
	usingCandidates := false

	if useIndex && o.Index.Trained() {
		if maxCodesOverride != nil {
			prev := o.Index.MaxCodes()
			o.Index.SetMaxCodes(*maxCodesOverride)
			defer o.Index.SetMaxCodes(prev)
		}

		probe := nprobe
		if probe > o.Index.NCells() {
			probe = o.Index.NCells()
		}
		candidates := o.Index.Search(query, probe)
		if len(candidates) > 0 {
			candidatePositions = candidates
			usingCandidates = true
		}
	}

	var mat [][]float32
	var norms []float32

	if usingCandidates {
		allVecs := o.Store.GetVectors()
		allNorms := o.Store.GetNorms()
		mat = make([][]float32, len(candidatePositions))
		norms = make([]float32, len(candidatePositions))
		for i, pos := range candidatePositions {
			mat[i] = allVecs[pos]
			norms[i] = allNorms[pos]
		}
	} else {
		mat = o.Store.GetVectors()
		norms = o.Store.GetNorms()
	}

	type scored struct {
		relativePos int
		score       float32
	}

	var ranked []scored
	switch metric {
	case Cosine:
		l2norms := make([]float32, len(norms))
		for i, sq := range norms {
			l2norms[i] = float32(math.Sqrt(float64(sq)))
		}
		sims := distance.Cosine(query, mat, l2norms)
		ranked = make([]scored, len(sims))
		for i, s := range sims {
			ranked[i] = scored{relativePos: i, score: s}
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].score > ranked[j].score
		})
	default:
		dists := distance.L2(query, mat, norms)
		ranked = make([]scored, len(dists))
		for i, s := range dists {
			ranked[i] = scored{relativePos: i, score: s}
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].score < ranked[j].score
		})
	}

	if topK < len(ranked) {
		ranked = ranked[:topK]
	}

	ids := o.Store.GetIDs()
	results := make([]Result, len(ranked))
	for i, r := range ranked {
		globalPos := r.relativePos
		if usingCandidates {
			globalPos = candidatePositions[r.relativePos]
		}
		results[i] = Result{ID: ids[globalPos], Score: r.score}
	}

	latencyMs := elapsedMs(start)
	if useAgent {
		ag.Update(strategyName, latencyMs)
	}

	return Outcome{Results: results, LatencyMs: latencyMs, StrategyName: strategyName}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
