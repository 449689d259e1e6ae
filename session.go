package main

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcutil"
)

// connState is the Stratum handshake state machine a Session walks
// through: Init -> {Configured, Subscribed} -> Subscribed -> Authorized
// -> Working.
type connState int

const (
	stateInit connState = iota
	stateConfigured
	stateSubscribed
	stateAuthorized
	stateWorking
	stateDropped
)

func (s connState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateConfigured:
		return "configured"
	case stateSubscribed:
		return "subscribed"
	case stateAuthorized:
		return "authorized"
	case stateWorking:
		return "working"
	case stateDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Session represents one authorized worker's accumulated state across
// the lifetime of a TCP connection. It is owned exclusively by that
// connection's goroutine except for the counters, which Metatron's
// aggregation path also reads.
type Session struct {
	mu sync.Mutex

	state connState

	Enonce1     Extranonce
	Address     btcutil.Address
	Username    string
	WorkerName  string
	UserAgent   string
	VersionMask *Version

	Vardiff  *Vardiff
	Jobs     *JobStore
	HashRate *SharedHashRates

	Accepted          atomic.Uint64
	Rejected          atomic.Uint64
	BestDifficultyBits uint64 // math.Float64bits of the best share difficulty seen
	TotalWork         atomic.Uint64 // accumulated integer-truncated work units

	LastShareAt   atomic.Int64 // unix nanos
	AuthorizedAt  time.Time
	ConnectedAt   time.Time
}

// NewSession creates a session in the Init state with a fresh JobStore
// and hashrate tracker. enonce1 is assigned by the caller (Metatron in
// pool mode, the extended upstream prefix in proxy mode).
func NewSession(enonce1 Extranonce, startDiff Difficulty, vardiffWindow, vardiffPeriod time.Duration) *Session {
	return &Session{
		state:       stateInit,
		Enonce1:     enonce1,
		Vardiff:     NewVardiff(startDiff, vardiffWindow, vardiffPeriod),
		Jobs:        NewJobStore(),
		HashRate:    NewSharedHashRates(),
		ConnectedAt: time.Now(),
	}
}

func (s *Session) State() connState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition moves the session to next, validating against the
// permitted-transition table (spec.md §4.8). Returns
// ErrMethodNotAllowed if the transition is not permitted from the
// current state, leaving the state unchanged.
func (s *Session) transition(event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event {
	case "configure":
		switch s.state {
		case stateInit, stateConfigured:
			s.state = stateConfigured
			return nil
		}
	case "subscribe":
		switch s.state {
		case stateInit, stateConfigured:
			s.state = stateSubscribed
			return nil
		}
	case "authorize":
		if s.state == stateSubscribed {
			s.state = stateAuthorized
			return nil
		}
	case "first_notify":
		if s.state == stateAuthorized {
			s.state = stateWorking
			return nil
		}
	case "submit":
		if s.state == stateWorking {
			return nil
		}
	case "disconnect":
		s.state = stateDropped
		return nil
	}

	return ErrMethodNotAllowed
}

// RecordAccepted folds an accepted share of the given difficulty into
// the session's counters and hashrate tracker.
func (s *Session) RecordAccepted(diff Difficulty) {
	s.Accepted.Add(1)
	s.HashRate.Record(diff.Float())
	s.TotalWork.Add(uint64(diff.Float()))
	s.LastShareAt.Store(time.Now().UnixNano())
}

// RecordRejected increments the rejected-share counter.
func (s *Session) RecordRejected() {
	s.Rejected.Add(1)
}
