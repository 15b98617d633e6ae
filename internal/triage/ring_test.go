package triage

import (
	"fmt"
	"testing"
)

func TestRing_EvictsOldest(t *testing.T) {
	t.Parallel()

	r := NewRing(3)
	for i := 1; i <= 5; i++ {
		r.Add(&Result{ID: fmt.Sprintf("r%d", i)})
	}

	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}
	if _, ok := r.Get("r1"); ok {
		t.Error("r1 should have been evicted")
	}
	if _, ok := r.Get("r2"); ok {
		t.Error("r2 should have been evicted")
	}
	if _, ok := r.Get("r5"); !ok {
		t.Error("r5 should be present")
	}
}

func TestRing_RecentNewestFirst(t *testing.T) {
	t.Parallel()

	r := NewRing(10)
	for i := 1; i <= 4; i++ {
		r.Add(&Result{ID: fmt.Sprintf("r%d", i)})
	}

	got := r.Recent(2)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "r4" || got[1].ID != "r3" {
		t.Errorf("Recent(2) = [%s %s], want [r4 r3]", got[0].ID, got[1].ID)
	}

	all := r.Recent(0)
	if len(all) != 4 {
		t.Errorf("Recent(0) len = %d, want 4", len(all))
	}
}

func TestRing_DefaultCapacity(t *testing.T) {
	t.Parallel()

	r := NewRing(0)
	r.Add(&Result{ID: "x"})
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}
