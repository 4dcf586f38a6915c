// Package kmeans implements the batched centroid training used by the IVF
// coarse quantizer: optional subsampling, uniform-without-replacement
// initialization, expansion-identity assignment, empty-cluster reseeding,
// and max-coordinate-delta convergence.
package kmeans

import (
	"math"
	"math/rand"

	"github.com/nanovec/nanovec/internal/distance"
)

// Config controls a single training run.
type Config struct {
	MaxIter       int
	Tolerance     float64
	SubsampleSize int
	Rand          *rand.Rand
}

// DefaultConfig matches the spec's default training budget.
func DefaultConfig() Config {
	return Config{
		MaxIter:       10,
		Tolerance:     1e-4,
		SubsampleSize: 10000,
	}
}

// Result holds the trained centroids and the label of every row of the full
// input matrix (not just the subsample used to train).
type Result struct {
	Centroids [][]float32
	Labels    []int64
}

// Train runs Lloyd's algorithm over data, producing k centroids. When
// len(data) exceeds cfg.SubsampleSize, training iterates over a uniform
// subsample but the final label assignment always covers the full matrix.
func Train(data [][]float32, k int, cfg Config) Result {
	r := cfg.Rand
	if r == nil {
		r = rand.New(rand.NewSource(1))
	}

	training := data
	if cfg.SubsampleSize > 0 && len(data) > cfg.SubsampleSize {
		training = sampleWithoutReplacement(data, cfg.SubsampleSize, r)
	}

	centroids := initCentroids(training, k, r)

	maxIter := cfg.MaxIter
	if maxIter <= 0 {
		maxIter = 10
	}
	tol := cfg.Tolerance
	if tol <= 0 {
		tol = 1e-4
	}

	for iter := 0; iter < maxIter; iter++ {
		assignments := assign(training, centroids)
		newCentroids := update(training, centroids, assignments, r)

		delta := maxCoordinateDelta(centroids, newCentroids)
		centroids = newCentroids
		if delta < tol {
			break
		}
	}

	labels := assign(data, centroids)
	return Result{Centroids: centroids, Labels: labels}
}

func sampleWithoutReplacement(data [][]float32, n int, r *rand.Rand) [][]float32 {
	idx := r.Perm(len(data))[:n]
	out := make([][]float32, n)
	for i, j := range idx {
		out[i] = data[j]
	}
	return out
}

// initCentroids picks k distinct rows uniformly without replacement.
func initCentroids(data [][]float32, k int, r *rand.Rand) [][]float32 {
	idx := r.Perm(len(data))[:k]
	centroids := make([][]float32, k)
	for i, j := range idx {
		row := make([]float32, len(data[j]))
		copy(row, data[j])
		centroids[i] = row
	}
	return centroids
}

// assign labels every row of data with the index of its nearest centroid,
// using the expansion-identity L2 kernel. Ties favor the lowest centroid
// index since argmin scans centroids in order and only replaces on strict
// improvement.
func assign(data [][]float32, centroids [][]float32) []int64 {
	labels := make([]int64, len(data))
	for i, row := range data {
		dists := distance.L2(row, centroids, nil)
		best := 0
		bestDist := dists[0]
		for c := 1; c < len(dists); c++ {
			if dists[c] < bestDist {
				bestDist = dists[c]
				best = c
			}
		}
		labels[i] = int64(best)
	}
	return labels
}

// update recomputes each centroid as the mean of its assigned rows,
// reseeding empty clusters to a uniformly random training row rather than
// leaving the previous centroid in place.
func update(data [][]float32, prev [][]float32, labels []int64, r *rand.Rand) [][]float32 {
	k := len(prev)
	d := len(prev[0])

	sums := make([][]float64, k)
	counts := make([]int, k)
	for c := range sums {
		sums[c] = make([]float64, d)
	}

	for i, row := range data {
		c := labels[i]
		counts[c]++
		for j, v := range row {
			sums[c][j] += float64(v)
		}
	}

	next := make([][]float32, k)
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			reseed := make([]float32, d)
			copy(reseed, data[r.Intn(len(data))])
			next[c] = reseed
			continue
		}
		row := make([]float32, d)
		for j := 0; j < d; j++ {
			row[j] = float32(sums[c][j] / float64(counts[c]))
		}
		next[c] = row
	}
	return next
}

func maxCoordinateDelta(a, b [][]float32) float64 {
	var max float64
	for c := range a {
		for j := range a[c] {
			diff := math.Abs(float64(a[c][j]) - float64(b[c][j]))
			if diff > max {
				max = diff
			}
		}
	}
	return max
}
