package main

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
)

// Target is a 256-bit unsigned big-endian value: the network or pool
// threshold a block hash (or share hash) must not exceed.
type Target struct {
	v *big.Int
}

// maxTargetBig is the difficulty-1 target: bits=0x1d00ffff expanded.
var maxTargetBig = blockchain.CompactToBig(0x1d00ffff)

// MaxTarget is the difficulty-1 target.
func MaxTarget() Target {
	return Target{v: new(big.Int).Set(maxTargetBig)}
}

// TargetFromBigInt wraps an existing big.Int. The big.Int is copied.
func TargetFromBigInt(v *big.Int) Target {
	if v == nil {
		return Target{v: new(big.Int)}
	}
	return Target{v: new(big.Int).Set(v)}
}

// TargetFromCompact expands a 32-bit compact ("bits") encoding.
func TargetFromCompact(bits uint32) Target {
	return Target{v: blockchain.CompactToBig(bits)}
}

// TargetFromBigEndianBytes interprets b as a big-endian unsigned integer.
func TargetFromBigEndianBytes(b []byte) Target {
	return Target{v: new(big.Int).SetBytes(b)}
}

// TargetFromHex decodes a big-endian hex string into a Target.
func TargetFromHex(s string) (Target, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Target{}, fmt.Errorf("decode target hex: %w", err)
	}
	return TargetFromBigEndianBytes(b), nil
}

// ToCompactLossy reduces the target to its 32-bit compact ("bits") form,
// truncating the mantissa, so the result never exceeds the original target.
func (t Target) ToCompactLossy() uint32 {
	return blockchain.BigToCompact(t.Big())
}

// Big returns the underlying big.Int. Callers must not mutate it.
func (t Target) Big() *big.Int {
	if t.v == nil {
		return new(big.Int)
	}
	return t.v
}

// IsMetBy reports whether hash, interpreted as a 256-bit little-endian
// integer (Bitcoin's in-memory block hash byte order), is <= t.
func (t Target) IsMetBy(hash [32]byte) bool {
	var reversed [32]byte
	for i, b := range hash {
		reversed[31-i] = b
	}
	h := new(big.Int).SetBytes(reversed[:])
	return h.Cmp(t.Big()) <= 0
}

// DifficultyFloat converts the target to a float64 difficulty relative to
// the difficulty-1 target (MaxTarget / t).
func (t Target) DifficultyFloat() float64 {
	if t.Big().Sign() <= 0 {
		return 0
	}
	num := new(big.Float).SetInt(maxTargetBig)
	den := new(big.Float).SetInt(t.Big())
	ratio := new(big.Float).Quo(num, den)
	f, _ := ratio.Float64()
	return f
}

func (t Target) String() string {
	return fmt.Sprintf("%064x", t.Big())
}
