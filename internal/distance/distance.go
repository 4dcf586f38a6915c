// Package distance implements the batched distance kernels used by the
// vector store, k-means training and the search orchestrator. Every kernel
// operates on a query vector against a row-major matrix and returns one
// score per row.
package distance

import "math"

const epsilon = 1e-10

// L2 computes Euclidean distances between query and each row of mat using
// the expansion identity ‖q−v‖² = ‖q‖²+‖v‖²−2·q·v. vSq, when non-nil, is the
// precomputed squared L2 norm of each row of mat and is consumed verbatim;
// otherwise it is recomputed from mat. Negative values produced by rounding
// are clamped to zero before the square root.
func L2(query []float32, mat [][]float32, vSq []float32) []float32 {
	d := len(query)
	n := len(mat)
	out := make([]float32, n)

	var qSq float32
	for _, x := range query {
		qSq += x * x
	}

	for i, row := range mat {
		var dot float32
		for j := 0; j < d; j++ {
			dot += query[j] * row[j]
		}
		var rowSq float32
		if vSq != nil {
			rowSq = vSq[i]
		} else {
			for _, x := range row {
				rowSq += x * x
			}
		}
		sq := qSq + rowSq - 2*dot
		if sq < 0 {
			sq = 0
		}
		out[i] = float32(math.Sqrt(float64(sq)))
	}
	return out
}

// Cosine computes cosine similarity (q·v)/(‖q‖·‖v‖+ε) between query and each
// row of mat. vNorms, when non-nil, holds the (unsquared) L2 norm of each
// row and is consumed verbatim; otherwise it is recomputed.
func Cosine(query []float32, mat [][]float32, vNorms []float32) []float32 {
	d := len(query)
	n := len(mat)
	out := make([]float32, n)

	var qSq float64
	for _, x := range query {
		qSq += float64(x) * float64(x)
	}
	qNorm := math.Sqrt(qSq)

	for i, row := range mat {
		var dot float32
		for j := 0; j < d; j++ {
			dot += query[j] * row[j]
		}
		var vNorm float64
		if vNorms != nil {
			vNorm = float64(vNorms[i])
		} else {
			var sq float64
			for _, x := range row {
				sq += float64(x) * float64(x)
			}
			vNorm = math.Sqrt(sq)
		}
		out[i] = float32(float64(dot) / (qNorm*vNorm + epsilon))
	}
	return out
}

// L2Squared computes squared Euclidean distances using the same expansion
// identity as L2 but without the final square root — used by the IVF index
// for centroid ranking, where only relative order matters.
func L2Squared(query []float32, mat [][]float32, vSq []float32) []float32 {
	d := len(query)
	n := len(mat)
	out := make([]float32, n)

	var qSq float32
	for _, x := range query {
		qSq += x * x
	}

	for i, row := range mat {
		var dot float32
		for j := 0; j < d; j++ {
			dot += query[j] * row[j]
		}
		var rowSq float32
		if vSq != nil {
			rowSq = vSq[i]
		} else {
			for _, x := range row {
				rowSq += x * x
			}
		}
		sq := qSq + rowSq - 2*dot
		if sq < 0 {
			sq = 0
		}
		out[i] = sq
	}
	return out
}

// Normalize divides each row of mat by its L2 norm plus ε, in place.
// A single vector (len(mat) == 1) normalizes the same way as any other row.
func Normalize(mat [][]float32) {
	for _, row := range mat {
		var sq float64
		for _, x := range row {
			sq += float64(x) * float64(x)
		}
		norm := float32(math.Sqrt(sq)) + epsilon
		for j := range row {
			row[j] /= norm
		}
	}
}

// SquaredNorm returns Σ v² for a single row, used by callers that maintain
// their own squared-norm caches (the vector store, the IVF centroid table).
func SquaredNorm(v []float32) float32 {
	var sq float32
	for _, x := range v {
		sq += x * x
	}
	return sq
}
