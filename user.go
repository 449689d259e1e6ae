package main

import "sync/atomic"

// User aggregates totals across every worker connected under one
// Bitcoin address, independent of how many sessions (rigs) are
// currently open for it.
type User struct {
	Address string

	Accepted atomic.Uint64
	Rejected atomic.Uint64
	Blocks   atomic.Uint64

	HashRate *SharedHashRates
}

// NewUser creates an empty aggregate for address.
func NewUser(address string) *User {
	return &User{Address: address, HashRate: NewSharedHashRates()}
}

// RecordAccepted folds an accepted share's difficulty into the user's
// aggregate counters and hashrate tracker.
func (u *User) RecordAccepted(diff Difficulty) {
	u.Accepted.Add(1)
	u.HashRate.Record(diff.Float())
}

// RecordRejected increments the user's rejected-share counter.
func (u *User) RecordRejected() {
	u.Rejected.Add(1)
}

// RecordBlock increments the user's found-blocks counter.
func (u *User) RecordBlock() {
	u.Blocks.Add(1)
}
