package main

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// jobStoreSeenCapacity bounds the duplicate-share LRU: large enough to
// catch resubmission within a session's normal working set without
// growing unbounded across a long-lived connection.
const jobStoreSeenCapacity = 16384

// JobStore owns the set of jobs a single session considers valid,
// together with its duplicate-block-hash detector. It is not shared
// across sessions: each Session owns one.
type JobStore struct {
	mu     sync.Mutex
	latest *Job
	valid  map[JobId]*Job
	seen   *lru[chainhash.Hash, struct{}]
}

// NewJobStore builds an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		valid: make(map[JobId]*Job),
		seen:  newLRU[chainhash.Hash, struct{}](jobStoreSeenCapacity),
	}
}

// Insert records job as the latest job. When cleanJobs is true, all
// previously valid jobs and the duplicate-hash set are discarded first,
// so job becomes the only valid job.
func (s *JobStore) Insert(job *Job, cleanJobs bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cleanJobs {
		s.valid = make(map[JobId]*Job)
		s.seen.Clear()
	}

	s.latest = job
	s.valid[job.JobID] = job
}

// Get returns the job registered under id, or (nil, false) if it is not
// currently valid (stale or unknown).
func (s *JobStore) Get(id JobId) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.valid[id]
	return job, ok
}

// Latest returns the most recently inserted job, or (nil, false) if none
// has been inserted yet.
func (s *JobStore) Latest() (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.latest != nil
}

// IsDuplicate records blockHash in the seen set and reports whether it
// was already present — a duplicate submission of an already-accepted
// share or block.
func (s *JobStore) IsDuplicate(blockHash chainhash.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen.Put(blockHash, struct{}{})
}
