package main

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// Workbase is the abstract capability set a Job is built from, shared by
// a node-derived block template (pool mode) and a received upstream
// mining.notify (proxy mode).
type Workbase interface {
	PrevHash() chainhash.Hash
	MerkleBranches() []MerkleNode
	Version() Version
	Nbits() Nbits
	Ntime() Ntime
	// CleanJobs reports whether jobs built from this workbase invalidate
	// all jobs built from previous, given the new and old workbase.
	// previous is nil for the first workbase a producer ever publishes.
	CleanJobs(previous Workbase) bool
}

// PoolWorkbase is a Workbase derived from a node's getblocktemplate
// result: height, coinbase value, non-coinbase transactions, and a
// default witness commitment script are all specific to pool mode,
// where this process itself assembles the coinbase transaction.
type PoolWorkbase struct {
	Height            int64
	CoinbaseValueSats int64
	PrevBlockHash     chainhash.Hash
	NonCoinbaseTxids  []chainhash.Hash
	NonCoinbaseTxHex  []string
	WitnessCommitment []byte
	BlockVersion      Version
	BlockNbits        Nbits
	BlockNtime        Ntime

	branches []MerkleNode
}

// NewPoolWorkbase builds a PoolWorkbase and precomputes its merkle
// branches from the supplied non-coinbase transaction ids.
func NewPoolWorkbase(height, coinbaseValueSats int64, prevBlockHash chainhash.Hash, nonCoinbaseTxids []chainhash.Hash, nonCoinbaseTxHex []string, witnessCommitment []byte, version Version, nbits Nbits, ntime Ntime) *PoolWorkbase {
	return &PoolWorkbase{
		Height:            height,
		CoinbaseValueSats: coinbaseValueSats,
		PrevBlockHash:     prevBlockHash,
		NonCoinbaseTxids:  nonCoinbaseTxids,
		NonCoinbaseTxHex:  nonCoinbaseTxHex,
		WitnessCommitment: witnessCommitment,
		BlockVersion:      version,
		BlockNbits:        nbits,
		BlockNtime:        ntime,
		branches:          MerkleBranches(nonCoinbaseTxids),
	}
}

func (w *PoolWorkbase) PrevHash() chainhash.Hash    { return w.PrevBlockHash }
func (w *PoolWorkbase) MerkleBranches() []MerkleNode { return w.branches }
func (w *PoolWorkbase) Version() Version            { return w.BlockVersion }
func (w *PoolWorkbase) Nbits() Nbits                { return w.BlockNbits }
func (w *PoolWorkbase) Ntime() Ntime                { return w.BlockNtime }

// CleanJobs for a pool template is true exactly when the previous-block
// hash has changed (a new block was found, or the producer attached to a
// different chain tip), matching the pool-mode semantics where the
// template's own coinbase value/height otherwise don't force a resync.
func (w *PoolWorkbase) CleanJobs(previous Workbase) bool {
	if previous == nil {
		return true
	}
	return previous.PrevHash() != w.PrevBlockHash
}

// UpstreamWorkbase is a Workbase built directly from an upstream
// mining.notify frame in proxy mode: the upstream already did the
// coinbase/merkle-branch construction, so this just carries the raw
// notify fields plus the notify's own clean_jobs flag.
type UpstreamWorkbase struct {
	JobIDHex      string
	Coinb1        string
	Coinb2        string
	Branches      []MerkleNode
	WireVersion   Version
	WireNbits     Nbits
	WireNtime     Ntime
	PrevBlockHash chainhash.Hash
	Clean         bool
}

func (w *UpstreamWorkbase) PrevHash() chainhash.Hash    { return w.PrevBlockHash }
func (w *UpstreamWorkbase) MerkleBranches() []MerkleNode { return w.Branches }
func (w *UpstreamWorkbase) Version() Version            { return w.WireVersion }
func (w *UpstreamWorkbase) Nbits() Nbits                { return w.WireNbits }
func (w *UpstreamWorkbase) Ntime() Ntime                { return w.WireNtime }

// CleanJobs for an upstream notify is simply whatever the upstream told
// us: the proxy has no independent way to judge staleness of upstream
// state, so it trusts the upstream's own signal.
func (w *UpstreamWorkbase) CleanJobs(Workbase) bool {
	return w.Clean
}
