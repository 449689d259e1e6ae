package main

import "testing"

// TestLRU_EvictsOldest checks that inserting beyond capacity evicts the
// least-recently-used entry, not an arbitrary one.
func TestLRU_EvictsOldest(t *testing.T) {
	l := newLRU[int, string](2)
	l.Put(1, "a")
	l.Put(2, "b")
	l.Put(3, "c") // evicts 1, the least recently used

	if l.Contains(1) {
		t.Fatalf("expected key 1 to be evicted")
	}
	if !l.Contains(2) || !l.Contains(3) {
		t.Fatalf("expected keys 2 and 3 to remain")
	}
	if l.Len() != 2 {
		t.Fatalf("expected Len() == 2, got %d", l.Len())
	}
}

// TestLRU_GetRefreshesRecency confirms that reading an entry moves it to
// the front, protecting it from the next eviction.
func TestLRU_GetRefreshesRecency(t *testing.T) {
	l := newLRU[int, string](2)
	l.Put(1, "a")
	l.Put(2, "b")

	if _, ok := l.Get(1); !ok {
		t.Fatalf("expected key 1 present")
	}

	l.Put(3, "c") // should evict 2, since 1 was just refreshed

	if !l.Contains(1) {
		t.Fatalf("expected key 1 to survive eviction after Get refresh")
	}
	if l.Contains(2) {
		t.Fatalf("expected key 2 to be evicted")
	}
}

// TestLRU_PutReportsAlreadyPresent checks Put's return value, which
// JobStore.IsDuplicate relies on directly.
func TestLRU_PutReportsAlreadyPresent(t *testing.T) {
	l := newLRU[int, struct{}](4)
	if already := l.Put(1, struct{}{}); already {
		t.Fatalf("first Put of a new key must report alreadyPresent=false")
	}
	if already := l.Put(1, struct{}{}); !already {
		t.Fatalf("second Put of the same key must report alreadyPresent=true")
	}
}
