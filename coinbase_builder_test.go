package main

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

func testPayoutAddress(t *testing.T) btcutil.Address {
	t.Helper()
	addr, err := btcutil.NewAddressPubKeyHash(make([]byte, 20), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewAddressPubKeyHash: %v", err)
	}
	return addr
}

// TestCoinbaseBuilder_CoinbaseSplitReassemblesToSerializedTx checks the
// core property mining.notify depends on: concatenating coinb1 + enonce1 +
// enonce2-zero-fill + coinb2 reproduces exactly the transaction's own
// serialized bytes.
func TestCoinbaseBuilder_CoinbaseSplitReassemblesToSerializedTx(t *testing.T) {
	enonce1 := ExtranonceFromBytes([]byte{0xde, 0xad, 0xbe, 0xef})
	b := NewCoinbaseBuilder(testPayoutAddress(t), enonce1, 8, 800000, 625000000, nil).
		WithPoolSig("/goPool/")

	tx, coinb1, coinb2, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var w bytes.Buffer
	if err := tx.Serialize(&w); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	wantHex := hex.EncodeToString(w.Bytes())

	enonce2Zero := hex.EncodeToString(make([]byte, 8))
	gotHex := coinb1 + enonce1.Hex() + enonce2Zero + coinb2

	if gotHex != wantHex {
		t.Fatalf("coinbase split does not reassemble to the serialized tx:\n got=%s\nwant=%s", gotHex, wantHex)
	}
}

// TestCoinbaseBuilder_WitnessCommitmentOptional checks that an empty
// witness commitment produces exactly one transaction output (the payout),
// while a non-empty one adds a second zero-value output.
func TestCoinbaseBuilder_WitnessCommitmentOptional(t *testing.T) {
	enonce1 := ExtranonceFromBytes([]byte{0x01, 0x02, 0x03, 0x04})

	tx, _, _, err := NewCoinbaseBuilder(testPayoutAddress(t), enonce1, 4, 1, 100, nil).Build()
	if err != nil {
		t.Fatalf("Build (no witness commitment): %v", err)
	}
	if len(tx.TxOut) != 1 {
		t.Fatalf("expected 1 output with no witness commitment, got %d", len(tx.TxOut))
	}

	witnessCommit := make([]byte, 38)
	tx2, _, _, err := NewCoinbaseBuilder(testPayoutAddress(t), enonce1, 4, 1, 100, witnessCommit).Build()
	if err != nil {
		t.Fatalf("Build (with witness commitment): %v", err)
	}
	if len(tx2.TxOut) != 2 {
		t.Fatalf("expected 2 outputs with a witness commitment, got %d", len(tx2.TxOut))
	}
	if tx2.TxOut[1].Value != 0 {
		t.Fatalf("witness commitment output must carry zero value, got %d", tx2.TxOut[1].Value)
	}
}

// TestCoinbaseBuilder_HeightFitsBIP34 checks that a range of block heights
// all build successfully under the minimal scriptint encoding BIP34
// requires.
func TestCoinbaseBuilder_HeightFitsBIP34(t *testing.T) {
	enonce1 := ExtranonceFromBytes([]byte{0, 0, 0, 0})
	for _, height := range []int64{1, 127, 128, 800000, 4194304} {
		if _, _, _, err := NewCoinbaseBuilder(testPayoutAddress(t), enonce1, 4, height, 0, nil).Build(); err != nil {
			t.Fatalf("Build at height %d: %v", height, err)
		}
	}
}
