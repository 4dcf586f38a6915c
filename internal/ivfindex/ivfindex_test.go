package ivfindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func randomData(n, d int, seed int64) [][]float32 {
	x := int64(seed)
	next := func() float32 {
		x = (x*1103515245 + 12345) & 0x7fffffff
		return float32(x%1000) / 1000
	}
	data := make([][]float32, n)
	for i := range data {
		row := make([]float32, d)
		for j := range row {
			row[j] = next()
		}
		data[i] = row
	}
	return data
}

func TestTrainAssignsEveryRowExactlyOnce(t *testing.T) {
	data := randomData(500, 8, 7)
	idx := New(t.TempDir(), 0)
	if err := idx.Train(context.Background(), data, 20); err != nil {
		t.Fatalf("Train: %v", err)
	}

	seen := make(map[int]bool)
	for _, cell := range idx.cells {
		for _, pos := range cell {
			if seen[int(pos)] {
				t.Fatalf("row position %d assigned to more than one cell", pos)
			}
			seen[int(pos)] = true
		}
	}
	if len(seen) != len(data) {
		t.Fatalf("expected all %d rows assigned to cells, got %d", len(data), len(seen))
	}
}

func TestTrainShrinksCellsWhenDataIsSmall(t *testing.T) {
	data := randomData(5, 4, 1)
	idx := New(t.TempDir(), 0)
	if err := idx.Train(context.Background(), data, 100); err != nil {
		t.Fatalf("Train: %v", err)
	}
	if idx.NCells() > 1 {
		t.Fatalf("expected n_cells shrunk to max(1, N/10)=0->1 for N=5, got %d", idx.NCells())
	}
}

func TestSearchReducesToFlatWhenBudgetCoversEverything(t *testing.T) {
	data := randomData(200, 6, 3)
	idx := New(t.TempDir(), 0)
	idx.SetMaxCodes(1_000_000)
	if err := idx.Train(context.Background(), data, 10); err != nil {
		t.Fatalf("Train: %v", err)
	}

	candidates := idx.Search(data[0], idx.NCells())
	if len(candidates) != len(data) {
		t.Fatalf("expected candidate set to cover all %d rows when nprobe=K and max_codes is large, got %d", len(data), len(candidates))
	}
}

func TestSearchUntrainedReturnsEmpty(t *testing.T) {
	idx := New(t.TempDir(), 0)
	if got := idx.Search([]float32{1, 2}, 5); got != nil {
		t.Fatalf("expected nil candidates from untrained index, got %v", got)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	data := randomData(300, 5, 9)
	idx := New(dir, 0)
	if err := idx.Train(context.Background(), data, 15); err != nil {
		t.Fatalf("Train: %v", err)
	}

	reloaded := New(dir, 0)
	reloaded.Load()
	if !reloaded.Trained() {
		t.Fatalf("expected reloaded index to be trained")
	}
	if reloaded.NCells() != idx.NCells() {
		t.Fatalf("expected n_cells to round-trip, got %d want %d", reloaded.NCells(), idx.NCells())
	}
}

func TestLoadCorruptStateStaysUntrained(t *testing.T) {
	dir := t.TempDir()
	idx := New(dir, 0)
	idx.Load() // no state file at all yet
	if idx.Trained() {
		t.Fatalf("expected untrained index when no state file exists")
	}

	if err := os.WriteFile(filepath.Join(dir, stateFile), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt state: %v", err)
	}
	idx.Load()
	if idx.Trained() {
		t.Fatalf("expected untrained index after loading a corrupt state file")
	}
}

func TestAddVectorsNoOpWhenUntrained(t *testing.T) {
	idx := New(t.TempDir(), 0)
	if err := idx.AddVectors([][]float32{{1, 2}}, 0, nil); err != nil {
		t.Fatalf("expected no-op (nil error) on untrained index, got %v", err)
	}
}
