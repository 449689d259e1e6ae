package main

import (
	"testing"
	"time"
)

func newTestSession() *Session {
	return NewSession(ExtranonceFromBytes([]byte{1, 2, 3, 4}), DifficultyFromFloat(1), time.Minute, time.Second)
}

// TestSession_TransitionHappyPath walks the full handshake sequence and
// checks each step lands in the expected state.
func TestSession_TransitionHappyPath(t *testing.T) {
	s := newTestSession()

	steps := []struct {
		event string
		want  connState
	}{
		{"configure", stateConfigured},
		{"subscribe", stateSubscribed},
		{"authorize", stateAuthorized},
		{"first_notify", stateWorking},
		{"submit", stateWorking},
	}

	for _, step := range steps {
		if err := s.transition(step.event); err != nil {
			t.Fatalf("transition(%q) from %v: %v", step.event, s.State(), err)
		}
		if got := s.State(); got != step.want {
			t.Fatalf("after transition(%q): state = %v, want %v", step.event, got, step.want)
		}
	}
}

// TestSession_TransitionRejectsOutOfOrder checks that skipping ahead in
// the handshake (e.g. submitting before authorize) is refused rather than
// silently accepted.
func TestSession_TransitionRejectsOutOfOrder(t *testing.T) {
	s := newTestSession()

	if err := s.transition("submit"); err == nil {
		t.Fatalf("expected submit to be rejected before authorize")
	}
	if err := s.transition("authorize"); err == nil {
		t.Fatalf("expected authorize to be rejected before subscribe")
	}
	if got := s.State(); got != stateInit {
		t.Fatalf("state must remain unchanged after rejected transitions, got %v", got)
	}
}

// TestSession_SubscribeSkipsConfigure checks that configure is optional:
// a miner that never sends mining.configure can still subscribe directly
// from Init.
func TestSession_SubscribeSkipsConfigure(t *testing.T) {
	s := newTestSession()
	if err := s.transition("subscribe"); err != nil {
		t.Fatalf("subscribe from Init: %v", err)
	}
	if got := s.State(); got != stateSubscribed {
		t.Fatalf("state = %v, want subscribed", got)
	}
}

// TestSession_RecordAccepted checks that an accepted share updates the
// counter, hashrate tracker, and last-share timestamp together.
func TestSession_RecordAccepted(t *testing.T) {
	s := newTestSession()
	before := time.Now().UnixNano()

	s.RecordAccepted(DifficultyFromFloat(10))

	if s.Accepted.Load() != 1 {
		t.Fatalf("expected Accepted == 1, got %d", s.Accepted.Load())
	}
	if s.LastShareAt.Load() < before {
		t.Fatalf("LastShareAt not updated")
	}
}
