package nanovec

import "github.com/nanovec/nanovec/internal/search"

// Metric selects L2 or cosine scoring for a search.
type Metric = search.Metric

const (
	L2     = search.L2
	Cosine = search.Cosine
)

// SearchResult is one ranked hit: a caller-visible Id and its score (an L2
// distance, ascending, or a cosine similarity, descending).
type SearchResult struct {
	ID    int64
	Score float32
}

// SearchOutcome is the full result of one Search call.
type SearchOutcome struct {
	Results      []SearchResult
	LatencyMs    float64
	StrategyName string
}

// ArmStat reports one arm's observed performance, mirroring §4.F's
// get_stats payload.
type ArmStat struct {
	Pulls        int
	AvgReward    float64
	TotalReward  float64
	AvgLatencyMs float64
}

// AgentStats is the adaptive agent's get_stats report.
type AgentStats struct {
	Algorithm  string
	Epsilon    float64
	TotalPulls int
	Arms       map[string]ArmStat
}
