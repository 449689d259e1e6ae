package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Extranonce is an opaque, variable-width byte string: extranonce1 (the
// process-assigned per-session prefix) or extranonce2 (the miner-chosen
// suffix it rolls through while searching for a valid share).
type Extranonce struct {
	b []byte
}

// ExtranonceRandom generates an n-byte extranonce from a CSPRNG. Session
// enonce1 values are not drawn from it; Metatron assigns them from a
// counter.
func ExtranonceRandom(n int) Extranonce {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand.Read failing means the OS entropy source is broken;
		// there is no safe degraded mode for a value miners trust to be
		// unique.
		panic(fmt.Sprintf("extranonce: read random bytes: %v", err))
	}
	return Extranonce{b: b}
}

// ExtranonceZeros returns an n-byte all-zero extranonce, the seed value a
// miner rolls forward from for extranonce2.
func ExtranonceZeros(n int) Extranonce {
	return Extranonce{b: make([]byte, n)}
}

// ExtranonceFromBytes copies b into a new Extranonce.
func ExtranonceFromBytes(b []byte) Extranonce {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Extranonce{b: cp}
}

// ExtranonceFromHex decodes a hex string as sent in mining.submit's
// extranonce2 field.
func ExtranonceFromHex(s string) (Extranonce, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Extranonce{}, fmt.Errorf("decode extranonce hex %q: %w", s, err)
	}
	return ExtranonceFromBytes(b), nil
}

// Bytes returns the underlying bytes. Callers must not mutate the
// returned slice.
func (e Extranonce) Bytes() []byte {
	return e.b
}

// Len reports the extranonce's width in bytes.
func (e Extranonce) Len() int {
	return len(e.b)
}

// Hex renders the extranonce as lowercase hex, as sent in mining.notify's
// coinb1/coinb2 split context or mining.subscribe's extranonce1 field.
func (e Extranonce) Hex() string {
	return hex.EncodeToString(e.b)
}

// IncrementWrapping adds 1 to the extranonce, treating it as a big-endian
// unsigned integer, and wraps on overflow back to all zeros.
func (e Extranonce) IncrementWrapping() Extranonce {
	out := make([]byte, len(e.b))
	copy(out, e.b)
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] != 0 {
			return Extranonce{b: out}
		}
	}
	return Extranonce{b: out}
}

func (e Extranonce) String() string {
	return e.Hex()
}
