package main

import (
	"sync"
	"sync/atomic"
	"time"
)

// metatronCleanupInterval is how often the snapshot-expiry sweep runs.
const metatronCleanupInterval = 60 * time.Second

// Metatron is the process-wide registry: users by address, sessions by
// enonce1, the found-blocks counter, process start time, and the
// enonce1 allocator. Named after the teacher's own process-registry
// convention of giving the aggregator a single memorable identifier
// rather than a generic "Registry" type.
type Metatron struct {
	mu        sync.RWMutex
	users     map[string]*User
	sessions  map[string]*Session // keyed by enonce1 hex
	snapshots map[string]*SessionSnapshot

	enonce1Counter atomic.Uint64
	enonce1Size    int
	upstreamPrefix []byte // proxy mode: shared upstream enonce1 prefix

	blocksFound atomic.Uint64
	startedAt   time.Time

	stopCleanup chan struct{}
}

// NewMetatron builds a registry for pool mode, allocating enonce1Size
// bytes per session entirely from the local counter.
func NewMetatron(enonce1Size int) *Metatron {
	return newMetatron(enonce1Size, nil)
}

// NewMetatronProxy builds a registry for proxy mode, where every
// allocated enonce1 is prefixed with the upstream's own assigned
// enonce1 bytes and the local counter only fills the extension.
func NewMetatronProxy(upstreamPrefix []byte, extensionSize int) *Metatron {
	return newMetatron(extensionSize, upstreamPrefix)
}

func newMetatron(counterBytes int, upstreamPrefix []byte) *Metatron {
	m := &Metatron{
		users:          make(map[string]*User),
		sessions:       make(map[string]*Session),
		snapshots:      make(map[string]*SessionSnapshot),
		enonce1Size:    counterBytes,
		upstreamPrefix: upstreamPrefix,
		startedAt:      time.Now(),
		stopCleanup:    make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// NextEnonce1 allocates a fresh, process-unique enonce1. In pool mode
// this is the raw little-endian truncated counter; in proxy mode the
// upstream prefix is prepended.
func (m *Metatron) NextEnonce1() Extranonce {
	n := m.enonce1Counter.Add(1)

	counterBytes := make([]byte, m.enonce1Size)
	for i := 0; i < m.enonce1Size; i++ {
		counterBytes[i] = byte(n)
		n >>= 8
	}

	if m.upstreamPrefix == nil {
		return ExtranonceFromBytes(counterBytes)
	}

	out := make([]byte, 0, len(m.upstreamPrefix)+len(counterBytes))
	out = append(out, m.upstreamPrefix...)
	out = append(out, counterBytes...)
	return ExtranonceFromBytes(out)
}

// RegisterSession adds s to the live-session table, keyed by its
// enonce1, and attempts to restore counters from a matching disconnect
// snapshot if one exists and hasn't expired.
func (m *Metatron) RegisterSession(s *Session) {
	key := s.Enonce1.Hex()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[key] = s

	if snap, ok := m.snapshots[key]; ok {
		delete(m.snapshots, key)
		if !snap.Expired(time.Now()) {
			s.Accepted.Store(snap.Accepted)
			s.Rejected.Store(snap.Rejected)
			s.TotalWork.Store(snap.Work)
		}
	}
}

// UnregisterSession removes s from the live table and files a snapshot
// of its counters for possible restoration on reconnect.
func (m *Metatron) UnregisterSession(s *Session) {
	key := s.Enonce1.Hex()

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, key)
	m.snapshots[key] = snapshotFromSession(s)
}

// UserFor returns the aggregate User for address, creating it if this is
// the address's first session.
func (m *Metatron) UserFor(address string) *User {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[address]; ok {
		return u
	}
	u := NewUser(address)
	m.users[address] = u
	return u
}

// RecordBlock increments the process-wide blocks-found counter.
func (m *Metatron) RecordBlock() {
	m.blocksFound.Add(1)
}

// BlocksFound reports the process-wide blocks-found counter.
func (m *Metatron) BlocksFound() uint64 {
	return m.blocksFound.Load()
}

// Uptime reports how long this process has been running.
func (m *Metatron) Uptime() time.Duration {
	return time.Since(m.startedAt)
}

// SessionCount reports the number of currently live sessions.
func (m *Metatron) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// cleanupLoop expires stale session snapshots on a fixed interval and
// logs a one-line status summary, matching the spec's scheduled
// cleanup task.
func (m *Metatron) cleanupLoop() {
	ticker := time.NewTicker(metatronCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweepExpiredSnapshots()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *Metatron) sweepExpiredSnapshots() {
	now := time.Now()

	m.mu.Lock()
	expired := 0
	for key, snap := range m.snapshots {
		if snap.Expired(now) {
			delete(m.snapshots, key)
			expired++
		}
	}
	sessionCount := len(m.sessions)
	m.mu.Unlock()

	logger.Info("metatron status",
		"sessions", sessionCount,
		"blocks_found", m.BlocksFound(),
		"uptime", humanizeUptime(m.Uptime()),
		"snapshots_expired", expired,
	)
}

// Stop halts the cleanup goroutine.
func (m *Metatron) Stop() {
	close(m.stopCleanup)
}
