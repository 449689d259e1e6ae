package main

import (
	"testing"
	"time"
)

// TestMetatron_NextEnonce1Unique checks successive allocations never
// collide, the property the session registry's enonce1-keyed map depends
// on.
func TestMetatron_NextEnonce1Unique(t *testing.T) {
	m := NewMetatron(4)
	defer m.Stop()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		e := m.NextEnonce1()
		if e.Len() != 4 {
			t.Fatalf("expected 4-byte enonce1, got %d bytes", e.Len())
		}
		if seen[e.Hex()] {
			t.Fatalf("duplicate enonce1 allocated: %s", e.Hex())
		}
		seen[e.Hex()] = true
	}
}

// TestMetatron_NextEnonce1Proxy checks that every allocation in proxy mode
// carries the shared upstream prefix followed by a per-session extension.
func TestMetatron_NextEnonce1Proxy(t *testing.T) {
	prefix := []byte{0xaa, 0xbb}
	m := NewMetatronProxy(prefix, 2)
	defer m.Stop()

	e := m.NextEnonce1()
	if e.Len() != len(prefix)+2 {
		t.Fatalf("expected %d-byte enonce1, got %d", len(prefix)+2, e.Len())
	}
	if e.Hex()[:len(prefix)*2] != "aabb" {
		t.Fatalf("expected enonce1 to start with upstream prefix, got %s", e.Hex())
	}
}

// TestMetatron_RegisterUnregisterSnapshotRestore checks that a session's
// counters survive a disconnect/reconnect cycle through the same enonce1,
// as long as the snapshot hasn't expired.
func TestMetatron_RegisterUnregisterSnapshotRestore(t *testing.T) {
	m := NewMetatron(4)
	defer m.Stop()

	enonce1 := m.NextEnonce1()
	s1 := NewSession(enonce1, DifficultyFromFloat(1), time.Minute, time.Second)
	m.RegisterSession(s1)
	s1.RecordAccepted(DifficultyFromFloat(5))
	m.UnregisterSession(s1)

	if got := m.SessionCount(); got != 0 {
		t.Fatalf("expected SessionCount 0 after unregister, got %d", got)
	}

	s2 := NewSession(enonce1, DifficultyFromFloat(1), time.Minute, time.Second)
	m.RegisterSession(s2)

	if s2.Accepted.Load() != s1.Accepted.Load() {
		t.Fatalf("expected reconnect to restore Accepted counter: got %d want %d", s2.Accepted.Load(), s1.Accepted.Load())
	}
}

// TestMetatron_UserForReusesExistingUser checks that repeated lookups for
// the same address return the same aggregate User rather than a fresh one.
func TestMetatron_UserForReusesExistingUser(t *testing.T) {
	m := NewMetatron(4)
	defer m.Stop()

	u1 := m.UserFor("1BoatSLRHtKNngkdXEeobR76b53LETtpyT")
	u2 := m.UserFor("1BoatSLRHtKNngkdXEeobR76b53LETtpyT")
	if u1 != u2 {
		t.Fatalf("expected UserFor to return the same User instance for the same address")
	}
}
