package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// maxCoinbaseScriptSigSize bounds the built scriptSig; a well-formed
// coinbase should never need more than this to carry the height push,
// aux data, extranonce slot, and pool tag.
const maxCoinbaseScriptSigSize = 100

// CoinbaseBuilder assembles a BIP34-compliant coinbase transaction with a
// contiguous extranonce slot at a fixed, reported offset, so a
// mining.notify job can hand miners a (coinb1, coinb2) split instead of
// the full transaction.
type CoinbaseBuilder struct {
	address         btcutil.Address
	aux             map[string]string
	enonce1         Extranonce
	enonce2Size     int
	height          int64
	poolSig         string
	randomizer      bool
	timestamp       *uint64
	value           btcutil.Amount
	witnessCommit   []byte
}

// NewCoinbaseBuilder seeds a builder with the fields every coinbase
// needs; optional fields are attached with the With* methods.
func NewCoinbaseBuilder(address btcutil.Address, enonce1 Extranonce, enonce2Size int, height int64, value btcutil.Amount, witnessCommitment []byte) *CoinbaseBuilder {
	return &CoinbaseBuilder{
		address:       address,
		enonce1:       enonce1,
		enonce2Size:   enonce2Size,
		height:        height,
		value:         value,
		witnessCommit: witnessCommitment,
	}
}

// WithAux attaches auxiliary key-value hex blobs (e.g. merge-mining
// commitments), iterated in key-sorted order during build.
func (b *CoinbaseBuilder) WithAux(aux map[string]string) *CoinbaseBuilder {
	b.aux = aux
	return b
}

// WithPoolSig attaches an operator-configured signature string appended
// after the extranonce placeholder.
func (b *CoinbaseBuilder) WithPoolSig(sig string) *CoinbaseBuilder {
	b.poolSig = sig
	return b
}

// WithTimestamp attaches an 8-byte little-endian seconds-since-epoch
// timestamp to the scriptSig.
func (b *CoinbaseBuilder) WithTimestamp(unixSeconds uint64) *CoinbaseBuilder {
	b.timestamp = &unixSeconds
	return b
}

// WithRandomizer appends a 16-byte randomizer (the current Unix seconds
// and the nanoseconds within that second, each an 8-byte little-endian
// integer),
// giving every built coinbase a unique scriptSig even when every other
// field is identical (e.g. two sessions sharing one workbase).
func (b *CoinbaseBuilder) WithRandomizer(on bool) *CoinbaseBuilder {
	b.randomizer = on
	return b
}

// scriptIntMinimal encodes n as Bitcoin Script's minimal-width signed
// little-endian integer, the form BIP34's height push requires.
func scriptIntMinimal(n int64) []byte {
	if n == 0 {
		return nil
	}

	neg := n < 0
	absN := n
	if neg {
		absN = -n
	}

	var out []byte
	for absN > 0 {
		out = append(out, byte(absN&0xff))
		absN >>= 8
	}

	if out[len(out)-1]&0x80 != 0 {
		if neg {
			out = append(out, 0x80)
		} else {
			out = append(out, 0x00)
		}
	} else if neg {
		out[len(out)-1] |= 0x80
	}

	return out
}

// Build assembles the coinbase transaction and returns it alongside its
// (coinb1, coinb2) hex split around the extranonce slot.
func (b *CoinbaseBuilder) Build() (*wire.MsgTx, string, string, error) {
	// tx version (4) + input count varint (1) + previous outpoint (36) +
	// scriptSig length varint (1, valid while scriptSig stays under 253
	// bytes, enforced by maxCoinbaseScriptSigSize).
	offset := 4 + 1 + 36 + 1

	buf := make([]byte, 0, maxCoinbaseScriptSigSize)

	heightPush := scriptIntMinimal(b.height)
	if len(heightPush) > 8 {
		return nil, "", "", fmt.Errorf("coinbase height %d does not fit a minimal scriptint push", b.height)
	}
	buf = append(buf, byte(len(heightPush)))
	buf = append(buf, heightPush...)

	if len(b.aux) > 0 {
		keys := make([]string, 0, len(b.aux))
		for k := range b.aux {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			decoded, err := hex.DecodeString(b.aux[k])
			if err != nil {
				return nil, "", "", fmt.Errorf("aux %q: invalid hex: %w", k, err)
			}
			buf = append(buf, decoded...)
		}
	}

	offset += len(buf)

	totalExtranonceSize := b.enonce1.Len() + b.enonce2Size

	buf = append(buf, b.enonce1.Bytes()...)
	buf = append(buf, make([]byte, b.enonce2Size)...)

	if b.poolSig != "" {
		buf = append(buf, []byte(b.poolSig)...)
	}

	if b.timestamp != nil {
		var ts [8]byte
		putUint64LE(ts[:], *b.timestamp)
		buf = append(buf, ts[:]...)
	}

	if b.randomizer {
		var r [16]byte
		putUint64LE(r[:8], uint64(time.Now().Unix()))
		putUint64LE(r[8:], uint64(time.Now().Nanosecond()))
		buf = append(buf, r[:]...)
	}

	buf = append(buf, coinbaseMarker...)

	if len(buf) > maxCoinbaseScriptSigSize {
		return nil, "", "", fmt.Errorf("script sig too large: %d bytes (max %d)", len(buf), maxCoinbaseScriptSigSize)
	}

	payoutScript, err := txscript.PayToAddrScript(b.address)
	if err != nil {
		return nil, "", "", fmt.Errorf("build payout script: %w", err)
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: 0xffffffff},
		SignatureScript:  buf,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(int64(b.value), payoutScript))
	if len(b.witnessCommit) > 0 {
		tx.AddTxOut(wire.NewTxOut(0, b.witnessCommit))
	}

	var serialized []byte
	{
		var w bytes.Buffer
		if err := tx.Serialize(&w); err != nil {
			return nil, "", "", fmt.Errorf("serialize coinbase: %w", err)
		}
		serialized = w.Bytes()
	}

	if offset+totalExtranonceSize > len(serialized) {
		return nil, "", "", fmt.Errorf("coinbase too short for extranonce slot at offset %d", offset)
	}

	coinb1 := hex.EncodeToString(serialized[:offset])
	coinb2 := hex.EncodeToString(serialized[offset+totalExtranonceSize:])

	return tx, coinb1, coinb2, nil
}

func putUint64LE(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v)
		v >>= 8
	}
}
