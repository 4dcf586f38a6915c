// Package store implements the persistent, memory-mapped vector store: an
// append-only collection of fixed-dimension rows with caller-supplied or
// auto-generated ids and cached squared L2 norms.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nanovec/nanovec/internal/distance"
)

const (
	vectorsFile = "vectors.npy"
	normsFile   = "norms.npy"
	idsFile     = "ids.npy"
	metaFile    = "meta.json"

	defaultInitialCapacity = 1000
)

type meta struct {
	Count     int `json:"count"`
	Dimension int `json:"dimension"`
}

// Store is the persistent, append-only vector collection described in
// §4.C: vectors.npy/norms.npy/ids.npy raw arrays plus a meta.json sidecar,
// all backed by memory-mapped files with amortized-doubling growth.
type Store struct {
	mu sync.RWMutex

	dir         string
	dimension   int
	count       int
	capacity    int
	initialized bool

	vectors *region
	norms   *region
	ids     *region
}

// Open returns a Store rooted at dir. If dir already contains a meta.json
// from a previous run, its files are remapped immediately (the startup
// path of §4.C); otherwise the Store starts uninitialized and is created
// lazily by the first AddVectors call.
func Open(dir string) (*Store, error) {
	s := &Store{dir: dir}

	metaPath := filepath.Join(dir, metaFile)
	raw, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", metaPath, err)
	}

	var m meta
	if err := json.Unmarshal(raw, &m); err != nil {
		// A decode failure on meta.json has no "fresh" fallback per
		// §4.C — the absence of meta.json is the only supported
		// fresh signal, so a corrupt meta.json is a hard failure.
		return nil, fmt.Errorf("decode %s: %w", metaPath, err)
	}

	vecStat, err := os.Stat(filepath.Join(dir, vectorsFile))
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", vectorsFile, err)
	}
	capacity := int(vecStat.Size()) / (m.Dimension * 4)

	vectors, err := openRegion(filepath.Join(dir, vectorsFile), int64(capacity*m.Dimension*4))
	if err != nil {
		return nil, err
	}
	ids, err := openRegion(filepath.Join(dir, idsFile), int64(capacity*8))
	if err != nil {
		vectors.Close()
		return nil, err
	}

	normsPath := filepath.Join(dir, normsFile)
	normsExisted := true
	if _, statErr := os.Stat(normsPath); os.IsNotExist(statErr) {
		normsExisted = false
	}
	norms, err := openRegion(normsPath, int64(capacity*4))
	if err != nil {
		vectors.Close()
		ids.Close()
		return nil, err
	}

	s.dimension = m.Dimension
	s.count = m.Count
	s.capacity = capacity
	s.vectors = vectors
	s.norms = norms
	s.ids = ids
	s.initialized = true

	if !normsExisted {
		view := vectors.float32View()
		normView := norms.float32View()
		for i := 0; i < m.Count; i++ {
			row := view[i*m.Dimension : (i+1)*m.Dimension]
			normView[i] = distance.SquaredNorm(row)
		}
		if err := norms.Sync(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// initialize creates the three backing files sized for initialCapacity
// rows, sets count=0 and writes meta. It must never be externally
// observable with count==0 unless that really is the store's new state —
// callers resizing an already-populated store restore count immediately
// under the same lock (see resize).
func (s *Store) initialize(dimension, initialCapacity int) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	vectors, err := openRegion(filepath.Join(s.dir, vectorsFile), int64(initialCapacity*dimension*4))
	if err != nil {
		return err
	}
	norms, err := openRegion(filepath.Join(s.dir, normsFile), int64(initialCapacity*4))
	if err != nil {
		vectors.Close()
		return err
	}
	ids, err := openRegion(filepath.Join(s.dir, idsFile), int64(initialCapacity*8))
	if err != nil {
		vectors.Close()
		norms.Close()
		return err
	}

	s.dimension = dimension
	s.capacity = initialCapacity
	s.count = 0
	s.vectors = vectors
	s.norms = norms
	s.ids = ids
	s.initialized = true

	return s.writeMeta()
}

func (s *Store) writeMeta() error {
	f, err := os.Create(filepath.Join(s.dir, metaFile))
	if err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(meta{Count: s.count, Dimension: s.dimension})
}

// Dimension returns the fixed row width, or 0 if the store has never been
// initialized.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Count returns the number of live rows.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// AddVectors appends n rows, computing squared norms row-wise and writing
// ids (caller-supplied, or a dense sequence starting at the current count
// when ids is nil). Duplicate ids are accepted silently — the store treats
// ids as opaque labels attached to row positions and never deduplicates.
func (s *Store) AddVectors(vecs [][]float32, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(vecs)
	if n == 0 {
		return fmt.Errorf("add_vectors: %w", ErrEmptyInput)
	}
	d := len(vecs[0])
	for _, v := range vecs {
		if len(v) != d {
			return fmt.Errorf("add_vectors: %w", ErrShapeMismatch)
		}
	}

	if !s.initialized {
		initCap := defaultInitialCapacity
		if n > initCap {
			initCap = n
		}
		if err := s.initialize(d, initCap); err != nil {
			return err
		}
	} else if d != s.dimension {
		return fmt.Errorf("add_vectors: expected dimension %d, got %d: %w", s.dimension, d, ErrShapeMismatch)
	}

	if s.count+n > s.capacity {
		newCap := 2 * s.capacity
		if s.count+n > newCap {
			newCap = s.count + n
		}
		if err := s.resize(newCap); err != nil {
			return err
		}
	}

	vecView := s.vectors.float32View()
	normView := s.norms.float32View()
	idView := s.ids.int64View()

	base := s.count
	for i, v := range vecs {
		copy(vecView[(base+i)*s.dimension:(base+i+1)*s.dimension], v)
		normView[base+i] = distance.SquaredNorm(v)
		if ids != nil {
			idView[base+i] = ids[i]
		} else {
			idView[base+i] = int64(base + i)
		}
	}

	s.count += n
	if err := s.writeMeta(); err != nil {
		return err
	}
	if err := s.vectors.Sync(); err != nil {
		return err
	}
	if err := s.norms.Sync(); err != nil {
		return err
	}
	return s.ids.Sync()
}

// resize grows the store to newCapacity rows following the protocol of
// §4.C: flush, copy the live prefix out into owned buffers, drop the
// mappings, reinitialize, copy the preserved rows back, restore count.
func (s *Store) resize(newCapacity int) error {
	oldCount := s.count
	oldDim := s.dimension

	if err := s.vectors.Sync(); err != nil {
		return err
	}
	if err := s.norms.Sync(); err != nil {
		return err
	}
	if err := s.ids.Sync(); err != nil {
		return err
	}

	preservedVecs := make([]float32, oldCount*oldDim)
	copy(preservedVecs, s.vectors.float32View()[:oldCount*oldDim])
	preservedNorms := make([]float32, oldCount)
	copy(preservedNorms, s.norms.float32View()[:oldCount])
	preservedIDs := make([]int64, oldCount)
	copy(preservedIDs, s.ids.int64View()[:oldCount])

	s.vectors.Close()
	s.norms.Close()
	s.ids.Close()

	if err := s.initialize(oldDim, newCapacity); err != nil {
		return err
	}

	copy(s.vectors.float32View()[:oldCount*oldDim], preservedVecs)
	copy(s.norms.float32View()[:oldCount], preservedNorms)
	copy(s.ids.int64View()[:oldCount], preservedIDs)

	s.count = oldCount
	return s.writeMeta()
}

// GetVectors returns a zero-copy view over the live prefix [0,count), one
// row slice per vector, all sharing the mapped backing array.
func (s *Store) GetVectors() [][]float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized || s.count == 0 {
		return nil
	}
	flat := s.vectors.float32View()
	rows := make([][]float32, s.count)
	for i := 0; i < s.count; i++ {
		rows[i] = flat[i*s.dimension : (i+1)*s.dimension]
	}
	return rows
}

// GetNorms returns a zero-copy view of the cached squared norms for the
// live prefix.
func (s *Store) GetNorms() []float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized || s.count == 0 {
		return nil
	}
	return s.norms.float32View()[:s.count]
}

// GetIDs returns a zero-copy view of the ids for the live prefix.
func (s *Store) GetIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized || s.count == 0 {
		return nil
	}
	return s.ids.int64View()[:s.count]
}

// Reset unmaps and deletes all four backing files, returning the store to
// its uncreated state.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		s.vectors.Close()
		s.norms.Close()
		s.ids.Close()
	}

	for _, name := range []string{vectorsFile, normsFile, idsFile, metaFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}

	s.dimension = 0
	s.count = 0
	s.capacity = 0
	s.initialized = false
	s.vectors = nil
	s.norms = nil
	s.ids = nil
	return nil
}

// Initialized reports whether the store has ever received an ingest.
func (s *Store) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}
