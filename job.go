package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// stratumPrevHash renders a previous-block-hash the way mining.notify's
// prevhash field expects: the header's internal (little-endian) bytes,
// but with each 4-byte word's byte order swapped — a long-standing
// Stratum V1 quirk distinct from both the header's wire order and the
// reversed-display convention used elsewhere.
func stratumPrevHash(h chainhash.Hash) string {
	var swapped [32]byte
	for word := 0; word < 8; word++ {
		be := binary.BigEndian.Uint32(h[word*4 : word*4+4])
		binary.LittleEndian.PutUint32(swapped[word*4:word*4+4], be)
	}
	return hex.EncodeToString(swapped[:])
}

// prevHashFromStratumWire inverts stratumPrevHash: the per-word swap it
// performs is its own inverse, so decoding an upstream mining.notify's
// prevhash field back into a chainhash.Hash is the same transform.
func prevHashFromStratumWire(wireHex string) (chainhash.Hash, error) {
	raw, err := hex.DecodeString(wireHex)
	if err != nil {
		return chainhash.Hash{}, err
	}
	if len(raw) != chainhash.HashSize {
		return chainhash.Hash{}, fmt.Errorf("prevhash wire value has %d bytes, want %d", len(raw), chainhash.HashSize)
	}

	var h chainhash.Hash
	for word := 0; word < 8; word++ {
		le := binary.LittleEndian.Uint32(raw[word*4 : word*4+4])
		binary.BigEndian.PutUint32(h[word*4:word*4+4], le)
	}
	return h, nil
}

// Job is the immutable unit of work handed to one session via
// mining.notify. It pins together a job id, a session-specific coinbase
// split, the session's own enonce1, the negotiated version mask (if
// any), and the shared Workbase the job was derived from.
type Job struct {
	JobID       JobId
	Coinb1      string
	Coinb2      string
	Enonce1     Extranonce
	VersionMask *Version
	Workbase    Workbase
	CleanJobs   bool
}

// NewJob builds a Job, assigning it a fresh process-unique id.
func NewJob(coinb1, coinb2 string, enonce1 Extranonce, versionMask *Version, wb Workbase, cleanJobs bool) *Job {
	return &Job{
		JobID:       NextJobId(),
		Coinb1:      coinb1,
		Coinb2:      coinb2,
		Enonce1:     enonce1,
		VersionMask: versionMask,
		Workbase:    wb,
		CleanJobs:   cleanJobs,
	}
}

// notifyParams is the JSON-RPC params array for a mining.notify
// notification, per Stratum V1's positional tuple convention.
type notifyParams struct {
	JobID          string
	PrevHash       string
	Coinb1         string
	Coinb2         string
	MerkleBranches []string
	Version        string
	Nbits          string
	Ntime          string
	CleanJobs      bool
}

// Notify renders the job's mining.notify payload. prevHashWire is the
// already word-swapped previous-block-hash hex Stratum V1 expects (not
// the same byte order as the block header field).
func (j *Job) Notify(prevHashWire string) notifyParams {
	branches := j.Workbase.MerkleBranches()
	branchHex := make([]string, len(branches))
	for i, b := range branches {
		branchHex[i] = b.String()
	}

	return notifyParams{
		JobID:          j.JobID.Hex(),
		PrevHash:       prevHashWire,
		Coinb1:         j.Coinb1,
		Coinb2:         j.Coinb2,
		MerkleBranches: branchHex,
		Version:        j.Workbase.Version().Hex(),
		Nbits:          j.Workbase.Nbits().Hex(),
		Ntime:          j.Workbase.Ntime().Hex(),
		CleanJobs:      j.CleanJobs,
	}
}
