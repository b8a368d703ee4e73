package peer

import (
	"errors"
	"testing"

	"github.com/momentics/ringsocket/api"
)

func TestTableAllocAndRelease(t *testing.T) {
	tbl := NewTable(4)
	if tbl.Cap() != 4 {
		t.Fatalf("cap = %d, want 4", tbl.Cap())
	}
	idx, s, err := tbl.Alloc(99, false, 0)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if s.FD != 99 || s.Layer != LayerTCP || s.Mortality != MortalityLive {
		t.Fatalf("unexpected freshly-allocated slot: %+v", s)
	}
	if tbl.Live() != 1 {
		t.Fatalf("live = %d, want 1", tbl.Live())
	}
	got, ok := tbl.Get(idx)
	if !ok || got != s {
		t.Fatalf("Get after Alloc mismatch")
	}
	tbl.Release(idx)
	if tbl.Live() != 0 {
		t.Fatalf("live = %d after release, want 0", tbl.Live())
	}
	if _, ok := tbl.Get(idx); ok {
		t.Fatalf("Get should fail for a freed slot")
	}
}

func TestTableExhaustion(t *testing.T) {
	tbl := NewTable(2)
	if _, _, err := tbl.Alloc(1, false, 0); err != nil {
		t.Fatalf("alloc 1: %v", err)
	}
	if _, _, err := tbl.Alloc(2, false, 0); err != nil {
		t.Fatalf("alloc 2: %v", err)
	}
	_, _, err := tbl.Alloc(3, false, 0)
	if !errors.Is(err, api.ErrSlotTableFull) {
		t.Fatalf("expected ErrSlotTableFull, got %v", err)
	}
}

func TestTableReusesFreedIndexFIFO(t *testing.T) {
	tbl := NewTable(2)
	idx0, _, _ := tbl.Alloc(1, false, 0)
	idx1, _, _ := tbl.Alloc(2, false, 0)
	tbl.Release(idx0)
	tbl.Release(idx1)
	// FIFO reuse order: idx0 freed first, so it should come back first.
	next, _, err := tbl.Alloc(3, false, 0)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if next != idx0 {
		t.Fatalf("reused index = %d, want %d (FIFO order)", next, idx0)
	}
}

func TestTableRange(t *testing.T) {
	tbl := NewTable(4)
	i1, _, _ := tbl.Alloc(1, false, 0)
	i2, _, _ := tbl.Alloc(2, false, 0)
	seen := map[uint32]bool{}
	tbl.Range(func(idx uint32, s *Slot) {
		seen[idx] = true
	})
	if !seen[i1] || !seen[i2] || len(seen) != 2 {
		t.Fatalf("Range saw %v, want exactly {%d, %d}", seen, i1, i2)
	}
}

func TestTableGetOutOfRange(t *testing.T) {
	tbl := NewTable(2)
	if _, ok := tbl.Get(99); ok {
		t.Fatalf("Get should fail for an out-of-range index")
	}
}
