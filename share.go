package main

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// blockHeaderSize is the fixed 80-byte serialized Bitcoin block header.
const blockHeaderSize = 80

// buildHeader serializes a candidate block header from a job's workbase
// fields, the session's assembled merkle root, and the miner-submitted
// ntime/nonce/version_bits. version/prevhash/merkleroot/nbits all use
// the header's internal (little-endian) byte order; chainhash.Hash
// already stores hashes in that order, so merkleRoot is copied as-is.
func buildHeader(job *Job, merkleRoot MerkleNode, ntime Ntime, nonce Nonce, versionBits *Version) [blockHeaderSize]byte {
	var header [blockHeaderSize]byte

	version := job.Workbase.Version()
	if versionBits != nil && job.VersionMask != nil {
		version = version.WithRolledBits(*job.VersionMask, *versionBits)
	}

	binary.LittleEndian.PutUint32(header[0:4], uint32(version))

	prevHash := job.Workbase.PrevHash()
	copy(header[4:36], prevHash[:])

	copy(header[36:68], merkleRoot[:])

	binary.LittleEndian.PutUint32(header[68:72], uint32(ntime))
	binary.LittleEndian.PutUint32(header[72:76], uint32(job.Workbase.Nbits()))
	binary.LittleEndian.PutUint32(header[76:80], uint32(nonce))

	return header
}

// headerHash double-SHA-256s a serialized header, in the same raw byte
// order Target.IsMetBy expects (it performs the big-endian reversal
// itself).
func headerHash(header [blockHeaderSize]byte) [32]byte {
	first := sha256Sum(header[:])
	return sha256Sum(first[:])
}

// ShareResult is the outcome of evaluating one mining.submit against a
// job: whether it met the session's pool target, the network target, or
// neither, carrying the computed difficulty for vardiff/accounting.
type ShareResult struct {
	Header       [blockHeaderSize]byte
	Hash         [32]byte
	ShareDiff    Difficulty
	MeetsPool    bool
	MeetsNetwork bool
}

// EvaluateShare reconstructs the header for job with the session's
// enonce1/submitted enonce2/ntime/nonce/version_bits, and judges it
// against poolTarget (the session's current vardiff target) and
// networkTarget (the block's actual target).
func EvaluateShare(job *Job, enonce2 Extranonce, ntime Ntime, nonce Nonce, versionBits *Version, poolTarget, networkTarget Target) (ShareResult, error) {
	merkleRoot, err := MerkleRoot(job.Coinb1, job.Coinb2, job.Enonce1, enonce2, job.Workbase.MerkleBranches())
	if err != nil {
		return ShareResult{}, fmt.Errorf("reassemble merkle root: %w", err)
	}

	header := buildHeader(job, merkleRoot, ntime, nonce, versionBits)
	hash := headerHash(header)

	shareTarget := TargetFromBigEndianBytes(reverseShareHash(hash))

	return ShareResult{
		Header:       header,
		Hash:         hash,
		ShareDiff:    DifficultyFromTarget(shareTarget),
		MeetsPool:    poolTarget.IsMetBy(hash),
		MeetsNetwork: networkTarget.IsMetBy(hash),
	}, nil
}

func reverseShareHash(hash [32]byte) []byte {
	out := make([]byte, 32)
	for i, b := range hash {
		out[31-i] = b
	}
	return out
}

// assembleBlockHex concatenates a found block's header, the fully
// reassembled coinbase transaction, and the template's non-coinbase
// transactions (already serialized hex from getblocktemplate) into the
// hex-encoded raw block submitblock expects.
func assembleBlockHex(header [blockHeaderSize]byte, coinb1, coinb2 string, enonce1, enonce2 Extranonce, nonCoinbaseTxHex []string) (string, error) {
	coinbaseHex := coinb1 + enonce1.Hex() + enonce2.Hex() + coinb2

	var buf bytes.Buffer
	buf.Write(header[:])

	if err := wire.WriteVarInt(&buf, 0, uint64(len(nonCoinbaseTxHex)+1)); err != nil {
		return "", fmt.Errorf("write tx count: %w", err)
	}

	coinbaseBin, err := hex.DecodeString(coinbaseHex)
	if err != nil {
		return "", fmt.Errorf("decode reassembled coinbase: %w", err)
	}
	buf.Write(coinbaseBin)

	for i, txHex := range nonCoinbaseTxHex {
		txBin, err := hex.DecodeString(txHex)
		if err != nil {
			return "", fmt.Errorf("decode template tx %d: %w", i, err)
		}
		buf.Write(txBin)
	}

	return hex.EncodeToString(buf.Bytes()), nil
}
