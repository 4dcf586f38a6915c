// Package agent implements the adaptive multi-armed-bandit query planner:
// epsilon-greedy and UCB1 arm selection over four fixed search
// configurations, reward tracking from measured latencies, and periodic
// snapshotting to disk.
package agent

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
)

// Algorithm selects the arm-selection strategy.
type Algorithm string

const (
	EpsilonGreedy Algorithm = "eps-greedy"
	UCB1          Algorithm = "ucb1"

	stateFile         = "agent_state.json"
	snapshotInterval  = 10
)

// Arm is one discrete search configuration the bandit can choose.
type Arm struct {
	Name     string
	UseIndex bool
	NProbe   int
	MaxCodes int
}

// FixedArms are the four arms of §4.F, in declaration order. Declaration
// order governs every tie-break rule in this package.
var FixedArms = []Arm{
	{Name: "flat", UseIndex: false},
	{Name: "ivf_conservative", UseIndex: true, NProbe: 5, MaxCodes: 10000},
	{Name: "ivf_balanced", UseIndex: true, NProbe: 10, MaxCodes: 50000},
	{Name: "ivf_aggressive", UseIndex: true, NProbe: 20, MaxCodes: 100000},
}

// ArmStatistics tracks one arm's observed performance.
type ArmStatistics struct {
	Pulls       int     `json:"pulls"`
	TotalReward float64 `json:"total_reward"`
	AvgReward   float64 `json:"avg_reward"`
}

// state is the on-disk snapshot shape of §4.F.
type state struct {
	Algorithm   Algorithm                `json:"algorithm"`
	Epsilon     float64                  `json:"epsilon"`
	TotalPulls  int                      `json:"total_pulls"`
	Statistics  map[string]*ArmStatistics `json:"statistics"`
}

// Stats is the report returned by GetStats.
type Stats struct {
	Algorithm  Algorithm
	Epsilon    float64
	TotalPulls int
	Arms       map[string]ArmReport
}

// ArmReport is one arm's entry in a Stats report.
type ArmReport struct {
	Pulls         int
	AvgReward     float64
	TotalReward   float64
	AvgLatencyMs  float64
}

// Agent is the adaptive query planner of §4.F.
type Agent struct {
	mu sync.Mutex

	dir       string
	algorithm Algorithm
	epsilon   float64

	totalPulls           int
	stats                map[string]*ArmStatistics
	updatesSinceSnapshot int

	rnd *rand.Rand
}

// New returns a fresh agent (no statistics) for the given algorithm. Call
// Load to restore a prior snapshot, if any.
func New(dir string, algorithm Algorithm, epsilon float64) *Agent {
	a := &Agent{
		dir:       dir,
		algorithm: algorithm,
		epsilon:   epsilon,
		stats:     make(map[string]*ArmStatistics, len(FixedArms)),
		rnd:       rand.New(rand.NewSource(1)),
	}
	a.resetStatsLocked()
	return a
}

func (a *Agent) resetStatsLocked() {
	a.stats = make(map[string]*ArmStatistics, len(FixedArms))
	for _, arm := range FixedArms {
		a.stats[arm.Name] = &ArmStatistics{}
	}
	a.totalPulls = 0
	a.updatesSinceSnapshot = 0
}

// SelectArm picks the next arm per the configured algorithm.
func (a *Agent) SelectArm() Arm {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.algorithm {
	case UCB1:
		return a.selectUCB1Locked()
	default:
		return a.selectEpsilonGreedyLocked()
	}
}

func (a *Agent) selectEpsilonGreedyLocked() Arm {
	if a.rnd.Float64() < a.epsilon {
		return FixedArms[a.rnd.Intn(len(FixedArms))]
	}

	best := FixedArms[0]
	bestReward := a.stats[best.Name].AvgReward
	for _, arm := range FixedArms[1:] {
		r := a.stats[arm.Name].AvgReward
		if r > bestReward {
			bestReward = r
			best = arm
		}
	}
	return best
}

func (a *Agent) selectUCB1Locked() Arm {
	for _, arm := range FixedArms {
		if a.stats[arm.Name].Pulls == 0 {
			return arm
		}
	}

	logTotal := math.Log(float64(a.totalPulls))
	best := FixedArms[0]
	bestScore := a.ucbScore(best, logTotal)
	for _, arm := range FixedArms[1:] {
		score := a.ucbScore(arm, logTotal)
		if score > bestScore {
			bestScore = score
			best = arm
		}
	}
	return best
}

func (a *Agent) ucbScore(arm Arm, logTotal float64) float64 {
	s := a.stats[arm.Name]
	return s.AvgReward + math.Sqrt(2*logTotal/float64(s.Pulls))
}

// Update records the outcome of one query issued under the named arm. A
// non-positive latency is silently ignored — no pull is recorded.
func (a *Agent) Update(armName string, latencyMs float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if latencyMs <= 0 {
		return nil
	}

	s, ok := a.stats[armName]
	if !ok {
		return fmt.Errorf("agent: unknown arm %q", armName)
	}

	reward := 1000.0 / latencyMs
	s.Pulls++
	s.TotalReward += reward
	s.AvgReward = s.TotalReward / float64(s.Pulls)
	a.totalPulls++
	a.updatesSinceSnapshot++

	if a.updatesSinceSnapshot >= snapshotInterval {
		a.updatesSinceSnapshot = 0
		if err := a.saveStateLocked(); err != nil {
			return err
		}
	}
	return nil
}

// GetStats returns the current report.
func (a *Agent) GetStats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	arms := make(map[string]ArmReport, len(a.stats))
	for name, s := range a.stats {
		avgLatency := 0.0
		if s.AvgReward > 0 {
			avgLatency = 1000.0 / s.AvgReward
		}
		arms[name] = ArmReport{
			Pulls:        s.Pulls,
			AvgReward:    s.AvgReward,
			TotalReward:  s.TotalReward,
			AvgLatencyMs: avgLatency,
		}
	}
	return Stats{
		Algorithm:  a.algorithm,
		Epsilon:    a.epsilon,
		TotalPulls: a.totalPulls,
		Arms:       arms,
	}
}

// SaveState snapshots the agent to disk via a temp-file-then-rename, so a
// reader never observes a partially-written snapshot under concurrent
// updates (§9's open question on concurrent agent writes).
func (a *Agent) SaveState() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saveStateLocked()
}

func (a *Agent) saveStateLocked() error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("agent: create data directory: %w", err)
	}

	st := state{
		Algorithm:  a.algorithm,
		Epsilon:    a.epsilon,
		TotalPulls: a.totalPulls,
		Statistics: a.stats,
	}

	path := filepath.Join(a.dir, stateFile)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("agent: write snapshot: %w", err)
	}
	if err := json.NewEncoder(f).Encode(st); err != nil {
		f.Close()
		return fmt.Errorf("agent: encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("agent: close snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load restores a prior snapshot. Any parse failure leaves the agent in
// its current (fresh) state rather than surfacing an error — learned state
// is recoverable by re-exploration.
func (a *Agent) Load() {
	a.mu.Lock()
	defer a.mu.Unlock()

	raw, err := os.ReadFile(filepath.Join(a.dir, stateFile))
	if err != nil {
		return
	}
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return
	}
	if st.Statistics == nil {
		return
	}

	sumPulls := 0
	for _, s := range st.Statistics {
		sumPulls += s.Pulls
	}
	if sumPulls != st.TotalPulls {
		// Corrupt/inconsistent snapshot: skip the load, keep fresh state.
		return
	}

	a.algorithm = st.Algorithm
	a.epsilon = st.Epsilon
	a.totalPulls = st.TotalPulls
	a.updatesSinceSnapshot = st.TotalPulls % snapshotInterval
	a.stats = make(map[string]*ArmStatistics, len(FixedArms))
	for _, arm := range FixedArms {
		if s, ok := st.Statistics[arm.Name]; ok {
			a.stats[arm.Name] = s
		} else {
			a.stats[arm.Name] = &ArmStatistics{}
		}
	}
}

// Reset clears all statistics and removes the on-disk snapshot, if any.
func (a *Agent) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.resetStatsLocked()

	path := filepath.Join(a.dir, stateFile)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("agent: remove snapshot: %w", err)
	}
	return nil
}
