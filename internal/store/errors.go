package store

import "errors"

// Sentinel errors for the vector store, grouped by the error kinds of §7.
var (
	// ErrShapeMismatch reports a vector whose length disagrees with the
	// store's fixed dimension, or a batch with inconsistent row widths.
	ErrShapeMismatch = errors.New("store: vector shape mismatch")

	// ErrEmptyInput reports a call with zero rows where at least one is
	// required.
	ErrEmptyInput = errors.New("store: empty input")
)
