package main

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// MerkleNode is a node in the block's merkle tree: a transaction id, a
// merkle branch hash, or the final root, all in Bitcoin's internal
// (reversed-display) hash byte order.
type MerkleNode = chainhash.Hash

// merkleNodeFromDoubleSHA256 double-SHA-256-hashes b and wraps the
// result as a MerkleNode. chainhash.Hash already stores bytes in the
// internal order consensus_encode uses, so no reversal is needed here.
func merkleNodeFromDoubleSHA256(b []byte) MerkleNode {
	first := sha256Sum(b)
	second := sha256Sum(first[:])
	var node MerkleNode
	copy(node[:], second[:])
	return node
}

// MerkleRoot reassembles the coinbase transaction from its coinb1/coinb2
// split plus the session's extranonce1/extranonce2, hashes it, and folds
// in the precomputed merkle branches (each combined in order with the
// running root) to produce the final merkle root for a block header.
func MerkleRoot(coinb1, coinb2 string, enonce1, enonce2 Extranonce, branches []MerkleNode) (MerkleNode, error) {
	full := coinb1 + enonce1.Hex() + enonce2.Hex() + coinb2
	coinbaseBin, err := hex.DecodeString(full)
	if err != nil {
		return MerkleNode{}, fmt.Errorf("decode reassembled coinbase: %w", err)
	}

	root := merkleNodeFromDoubleSHA256(coinbaseBin)
	for _, branch := range branches {
		concat := make([]byte, 0, 64)
		concat = append(concat, root[:]...)
		concat = append(concat, branch[:]...)
		root = merkleNodeFromDoubleSHA256(concat)
	}

	return root, nil
}

// MerkleBranches computes the merkle branch hashes a mining.notify job
// needs to let a miner (who doesn't have the coinbase transaction bytes
// yet) reconstruct the block's merkle root from its own assembled
// coinbase hash, given the block's non-coinbase transaction ids in
// block order.
//
// The coinbase slot is a placeholder zero hash during this computation;
// only its sibling at each tree level (never a hash derived from it) is
// ever recorded as a branch, so the result is independent of the actual
// coinbase content.
func MerkleBranches(nonCoinbaseTxids []chainhash.Hash) []MerkleNode {
	totalTxs := len(nonCoinbaseTxids) + 1
	if totalTxs <= 1 {
		return nil
	}

	level := make([]MerkleNode, 0, totalTxs)
	level = append(level, MerkleNode{})
	level = append(level, nonCoinbaseTxids...)

	var branches []MerkleNode
	coinbaseIdx := 0

	for len(level) > 1 {
		siblingIdx := coinbaseIdx ^ 1
		var sibling MerkleNode
		if siblingIdx < len(level) {
			sibling = level[siblingIdx]
		} else {
			sibling = level[coinbaseIdx]
		}
		branches = append(branches, sibling)

		nextLevel := make([]MerkleNode, 0, len(level)/2+1)
		for i := 0; i < len(level); i += 2 {
			h1 := level[i]
			h2 := h1
			if i+1 < len(level) {
				h2 = level[i+1]
			}

			concat := make([]byte, 0, 64)
			concat = append(concat, h1[:]...)
			concat = append(concat, h2[:]...)
			nextLevel = append(nextLevel, merkleNodeFromDoubleSHA256(concat))
		}

		level = nextLevel
		coinbaseIdx /= 2
	}

	return branches
}
