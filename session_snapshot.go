package main

import "time"

// sessionSnapshotTTL bounds how long a disconnected session's counters
// are retained, waiting for a quick reconnect, before the slot is
// reclaimed.
const sessionSnapshotTTL = 10 * time.Minute

// SessionSnapshot preserves a disconnected session's accumulated
// counters keyed by its enonce1, so a miner that reconnects quickly
// (e.g. after a brief network blip) resumes its accepted/rejected/work
// totals instead of starting at zero. Hashrate history is not carried
// over: HashRate starts empty.
type SessionSnapshot struct {
	Enonce1    Extranonce
	Address    string
	WorkerName string

	Accepted uint64
	Rejected uint64
	Work     uint64

	HashRate *HashRates

	expiresAt time.Time
}

// snapshotFromSession captures s's counters at disconnect time.
func snapshotFromSession(s *Session) *SessionSnapshot {
	addr := ""
	if s.Address != nil {
		addr = s.Address.EncodeAddress()
	}

	return &SessionSnapshot{
		Enonce1:    s.Enonce1,
		Address:    addr,
		WorkerName: s.WorkerName,
		Accepted:   s.Accepted.Load(),
		Rejected:   s.Rejected.Load(),
		Work:       s.TotalWork.Load(),
		HashRate:   NewHashRates(),
		expiresAt:  time.Now().Add(sessionSnapshotTTL),
	}
}

// Expired reports whether the snapshot has outlived its TTL as of now.
func (s *SessionSnapshot) Expired(now time.Time) bool {
	return now.After(s.expiresAt)
}
