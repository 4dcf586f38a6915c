// Package ivfindex implements the Inverted File coarse index: k-means
// centroid training, batched cell assignment, and an nprobe+max_codes
// budgeted candidate search. It never scores candidates — that is the
// search orchestrator's job.
package ivfindex

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/nanovec/nanovec/internal/distance"
	"github.com/nanovec/nanovec/internal/kmeans"
)

const (
	centroidsFile = "centroids.npy"
	stateFile     = "indexer_state.json"

	// DefaultMaxCodes is the secondary latency cap applied when a caller
	// does not request a narrower budget.
	DefaultMaxCodes = 50000
)

// indexerState is the JSON sidecar persisted alongside centroids.npy.
type indexerState struct {
	NCells    int             `json:"n_cells"`
	IsTrained bool            `json:"is_trained"`
	Cells     map[string][]int `json:"cells"`
	MaxCodes  int             `json:"max_codes"`
}

// Index is the IVF coarse quantizer of §4.D.
type Index struct {
	dir       string
	dimension int

	centroids     [][]float32
	centroidNorms []float32
	cells         [][]int32
	nCells        int
	maxCodes      int
	trained       bool

	rand *rand.Rand
}

// New returns an untrained index rooted at dir. maxCodes <= 0 selects
// DefaultMaxCodes.
func New(dir string, maxCodes int) *Index {
	if maxCodes <= 0 {
		maxCodes = DefaultMaxCodes
	}
	return &Index{dir: dir, maxCodes: maxCodes, rand: rand.New(rand.NewSource(1))}
}

// Trained reports whether the index has centroids and populated cells.
func (idx *Index) Trained() bool {
	return idx.trained
}

// NCells returns the number of coarse cells, 0 when untrained.
func (idx *Index) NCells() int {
	return idx.nCells
}

// MaxCodes returns the current candidate-accumulation budget.
func (idx *Index) MaxCodes() int {
	return idx.maxCodes
}

// SetMaxCodes overrides the candidate budget (the orchestrator uses this to
// temporarily install an arm's max_codes for the duration of one search).
func (idx *Index) SetMaxCodes(n int) {
	idx.maxCodes = n
}

// Train clusters data into nCells coarse cells and assigns every row of
// data to exactly one cell. When len(data) < nCells, nCells shrinks to
// max(1, len(data)/10).
func (idx *Index) Train(ctx context.Context, data [][]float32, nCells int) error {
	if len(data) == 0 {
		return ErrEmptyInput
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	k := nCells
	if len(data) < k {
		k = len(data) / 10
		if k < 1 {
			k = 1
		}
	}

	cfg := kmeans.DefaultConfig()
	cfg.Rand = idx.rand
	res := kmeans.Train(data, k, cfg)

	centroidNorms := make([]float32, k)
	for i, c := range res.Centroids {
		centroidNorms[i] = distance.SquaredNorm(c)
	}

	cells := make([][]int32, k)
	for i := range cells {
		cells[i] = []int32{}
	}
	for pos, label := range res.Labels {
		cells[label] = append(cells[label], int32(pos))
	}

	idx.dimension = len(data[0])
	idx.centroids = res.Centroids
	idx.centroidNorms = centroidNorms
	idx.cells = cells
	idx.nCells = k
	idx.trained = true

	return idx.save()
}

// AddVectors batch-assigns n newly-ingested rows (already appended to the
// store at [baseIndex, baseIndex+n)) to their nearest cells. It is a no-op
// when the index is untrained. The per-row squared norm of v does not
// affect which centroid is nearest (it is a constant offset across every
// centroid in the expansion identity), so unlike the cached centroid norms
// it is accepted but not consulted — kept in the signature to mirror
// §4.D's add_vectors(vecs, base_index, v_sq) shape.
func (idx *Index) AddVectors(vecs [][]float32, baseIndex int, vSq []float32) error {
	if !idx.trained {
		return nil
	}

	for i, v := range vecs {
		dists := distance.L2Squared(v, idx.centroids, idx.centroidNorms)
		best := 0
		bestDist := dists[0]
		for c := 1; c < len(dists); c++ {
			if dists[c] < bestDist {
				bestDist = dists[c]
				best = c
			}
		}
		idx.cells[best] = append(idx.cells[best], int32(baseIndex+i))
	}

	return idx.save()
}

// Search returns candidate row positions for query, walking cells in
// nearest-centroid order and stopping the cell walk (not the last cell)
// once the running candidate count reaches idx.maxCodes. Returns nil when
// untrained.
func (idx *Index) Search(query []float32, nprobe int) []int {
	if !idx.trained {
		return nil
	}
	if nprobe > idx.nCells {
		nprobe = idx.nCells
	}

	dists := distance.L2Squared(query, idx.centroids, idx.centroidNorms)
	order := make([]int, idx.nCells)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return dists[order[i]] < dists[order[j]]
	})
	order = order[:nprobe]

	var candidates []int
	for _, cellID := range order {
		for _, pos := range idx.cells[cellID] {
			candidates = append(candidates, int(pos))
		}
		if len(candidates) >= idx.maxCodes {
			break
		}
	}
	return candidates
}

func (idx *Index) save() error {
	if err := os.MkdirAll(idx.dir, 0o755); err != nil {
		return err
	}

	centroidBytes := make([]byte, 0, len(idx.centroids)*idx.dimension*4)
	buf := make([]byte, 4)
	for _, row := range idx.centroids {
		for _, v := range row {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			centroidBytes = append(centroidBytes, buf...)
		}
	}
	if err := os.WriteFile(filepath.Join(idx.dir, centroidsFile), centroidBytes, 0o644); err != nil {
		return err
	}

	cellsOut := make(map[string][]int, len(idx.cells))
	for i, c := range idx.cells {
		positions := make([]int, len(c))
		for j, p := range c {
			positions[j] = int(p)
		}
		cellsOut[strconv.Itoa(i)] = positions
	}

	st := indexerState{
		NCells:    idx.nCells,
		IsTrained: idx.trained,
		Cells:     cellsOut,
		MaxCodes:  idx.maxCodes,
	}

	f, err := os.Create(filepath.Join(idx.dir, stateFile))
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(st)
}

// Load deserializes centroids.npy and indexer_state.json. Per §4.D's
// persistence-robustness rule, any decoding error leaves the index
// untrained rather than surfacing to the caller — callers fall back
// transparently to flat search.
func (idx *Index) Load() {
	raw, err := os.ReadFile(filepath.Join(idx.dir, stateFile))
	if err != nil {
		return
	}
	var st indexerState
	if err := json.Unmarshal(raw, &st); err != nil {
		return
	}
	if !st.IsTrained {
		return
	}

	centroidBytes, err := os.ReadFile(filepath.Join(idx.dir, centroidsFile))
	if err != nil {
		return
	}
	if st.NCells == 0 || len(centroidBytes)%(st.NCells*4) != 0 {
		return
	}
	floatsPerCentroid := len(centroidBytes) / 4 / st.NCells
	if floatsPerCentroid == 0 {
		return
	}

	centroids := make([][]float32, st.NCells)
	off := 0
	for i := 0; i < st.NCells; i++ {
		row := make([]float32, floatsPerCentroid)
		for j := 0; j < floatsPerCentroid; j++ {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(centroidBytes[off : off+4]))
			off += 4
		}
		centroids[i] = row
	}

	cells := make([][]int32, st.NCells)
	for i := 0; i < st.NCells; i++ {
		positions := st.Cells[strconv.Itoa(i)]
		row := make([]int32, len(positions))
		for j, p := range positions {
			row[j] = int32(p)
		}
		cells[i] = row
	}

	centroidNorms := make([]float32, st.NCells)
	for i, c := range centroids {
		centroidNorms[i] = distance.SquaredNorm(c)
	}

	idx.dimension = floatsPerCentroid
	idx.centroids = centroids
	idx.centroidNorms = centroidNorms
	idx.cells = cells
	idx.nCells = st.NCells
	idx.maxCodes = st.MaxCodes
	idx.trained = true
}

// Reset clears cells and marks the index untrained, deleting its snapshot
// files.
func (idx *Index) Reset() error {
	idx.centroids = nil
	idx.centroidNorms = nil
	idx.cells = nil
	idx.nCells = 0
	idx.trained = false

	for _, name := range []string{centroidsFile, stateFile} {
		if err := os.Remove(filepath.Join(idx.dir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
