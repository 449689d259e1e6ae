package main

import (
	"fmt"
	"math/big"
)

// Difficulty wraps a compact target and exposes it as the familiar
// "difficulty" number used in mining.set_difficulty and share accounting.
// Internally it is always backed by a compact ("bits") target so that
// Target() round-trips exactly through the same lossy rounding Bitcoin
// itself uses for nbits.
type Difficulty struct {
	compact uint32
}

// diffScale mirrors the fixed-point scale used to avoid float rounding
// when converting a difficulty ratio into a target.
const diffScale = 1_000_000_000

// DifficultyFromNbits builds a Difficulty from a wire nbits value.
func DifficultyFromNbits(n Nbits) Difficulty {
	return Difficulty{compact: uint32(n)}
}

// DifficultyFromTarget derives a Difficulty from a Target via lossy
// compact rounding — the same rounding a real block header would use.
func DifficultyFromTarget(t Target) Difficulty {
	return Difficulty{compact: t.ToCompactLossy()}
}

// DifficultyFromFloat builds a Difficulty from a ratio relative to the
// difficulty-1 target. Panics if diff is not finite and > 0, matching the
// assertion the wire layer is expected to enforce before calling this.
func DifficultyFromFloat(diff float64) Difficulty {
	if !isFiniteFloat(diff) || diff <= 0 {
		panic("difficulty must be finite and > 0")
	}

	num := new(big.Int).Mul(maxTargetBig, big.NewInt(diffScale))
	den := uint64(diff*diffScale + 0.5)

	var target *big.Int
	if den == 0 {
		target = new(big.Int).Lsh(big.NewInt(1), 256)
		target.Sub(target, big.NewInt(1))
	} else {
		target = new(big.Int).Quo(num, new(big.Int).SetUint64(den))
	}

	return DifficultyFromTarget(TargetFromBigInt(target))
}

func isFiniteFloat(f float64) bool {
	return f == f && f < maxFloat64 && f > -maxFloat64
}

const maxFloat64 = 1.7976931348623157e+308

// Target expands the stored compact encoding to a full Target.
func (d Difficulty) Target() Target {
	return TargetFromCompact(d.compact)
}

// Nbits returns the compact encoding backing this difficulty.
func (d Difficulty) Nbits() Nbits {
	return Nbits(d.compact)
}

// Float returns the difficulty as a ratio relative to the difficulty-1
// target.
func (d Difficulty) Float() float64 {
	return d.Target().DifficultyFloat()
}

// MarshalJSON serializes difficulties < 1.0 as a JSON float and
// difficulties >= 1.0 as a floored JSON integer, matching mining.set_difficulty
// wire conventions observed across Stratum implementations.
func (d Difficulty) MarshalJSON() ([]byte, error) {
	f := d.Float()
	if f < 1.0 {
		return fastJSONMarshal(f)
	}
	return fastJSONMarshal(uint64(f))
}

// UnmarshalJSON accepts either an integer or a floating point number.
func (d *Difficulty) UnmarshalJSON(data []byte) error {
	var f float64
	if err := fastJSONUnmarshal(data, &f); err != nil {
		return fmt.Errorf("decode difficulty: %w", err)
	}
	if !isFiniteFloat(f) || f <= 0 {
		return fmt.Errorf("difficulty must be finite and > 0, got %v", f)
	}
	*d = DifficultyFromFloat(f)
	return nil
}

func (d Difficulty) String() string {
	return fmt.Sprintf("%g", d.Float())
}
