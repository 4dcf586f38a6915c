package nanovec

import (
	"fmt"

	"github.com/nanovec/nanovec/internal/agent"
)

// engineConfig collects the values Option functions mutate before New
// wires up the store, index and agent.
type engineConfig struct {
	defaultTopK    int
	agentAlgorithm agent.Algorithm
	agentEpsilon   float64
	ivfMaxCodes    int
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		defaultTopK:    10,
		agentAlgorithm: agent.EpsilonGreedy,
		agentEpsilon:   0.1,
		ivfMaxCodes:    0, // 0 selects ivfindex.DefaultMaxCodes
	}
}

// Option configures an Engine at construction time.
type Option func(*engineConfig) error

// WithDefaultTopK sets the top-k used when a caller does not specify one.
func WithDefaultTopK(k int) Option {
	return func(c *engineConfig) error {
		if k <= 0 {
			return fmt.Errorf("nanovec: default top_k must be positive")
		}
		c.defaultTopK = k
		return nil
	}
}

// WithAgentAlgorithm selects epsilon-greedy or UCB1 arm selection.
func WithAgentAlgorithm(alg agent.Algorithm) Option {
	return func(c *engineConfig) error {
		if alg != agent.EpsilonGreedy && alg != agent.UCB1 {
			return fmt.Errorf("nanovec: unknown agent algorithm %q", alg)
		}
		c.agentAlgorithm = alg
		return nil
	}
}

// WithAgentEpsilon sets the epsilon-greedy exploration rate.
func WithAgentEpsilon(epsilon float64) Option {
	return func(c *engineConfig) error {
		if epsilon < 0 || epsilon > 1 {
			return fmt.Errorf("nanovec: epsilon must be in [0,1]")
		}
		c.agentEpsilon = epsilon
		return nil
	}
}

// WithIVFMaxCodes overrides the IVF index's default candidate budget
// (before any per-arm override the agent may apply for one search).
func WithIVFMaxCodes(maxCodes int) Option {
	return func(c *engineConfig) error {
		if maxCodes <= 0 {
			return fmt.Errorf("nanovec: max_codes must be positive")
		}
		c.ivfMaxCodes = maxCodes
		return nil
	}
}
