package main

import "testing"

// TestExtranonce_IncrementWrapping checks the basic big-endian increment
// and its wraparound back to all zeros at the top of the value space.
func TestExtranonce_IncrementWrapping(t *testing.T) {
	e := ExtranonceFromBytes([]byte{0x00, 0x00})
	next := e.IncrementWrapping()
	if next.Hex() != "0001" {
		t.Fatalf("IncrementWrapping(0000) = %s, want 0001", next.Hex())
	}

	carry := ExtranonceFromBytes([]byte{0x00, 0xff})
	afterCarry := carry.IncrementWrapping()
	if afterCarry.Hex() != "0100" {
		t.Fatalf("IncrementWrapping(00ff) = %s, want 0100", afterCarry.Hex())
	}

	max := ExtranonceFromBytes([]byte{0xff, 0xff})
	wrapped := max.IncrementWrapping()
	if wrapped.Hex() != "0000" {
		t.Fatalf("IncrementWrapping(ffff) = %s, want wraparound to 0000", wrapped.Hex())
	}
}

// TestExtranonce_IncrementWrapping_DoesNotMutateReceiver checks that
// IncrementWrapping returns a new value rather than mutating the
// extranonce in place, since a session's enonce1 must stay stable.
func TestExtranonce_IncrementWrapping_DoesNotMutateReceiver(t *testing.T) {
	e := ExtranonceFromBytes([]byte{0x00, 0x00})
	_ = e.IncrementWrapping()
	if e.Hex() != "0000" {
		t.Fatalf("IncrementWrapping mutated the receiver: got %s", e.Hex())
	}
}

// TestExtranonce_HexRoundTrip checks ExtranonceFromHex inverts Hex.
func TestExtranonce_HexRoundTrip(t *testing.T) {
	e := ExtranonceFromBytes([]byte{0x01, 0x02, 0x03, 0x04})
	got, err := ExtranonceFromHex(e.Hex())
	if err != nil {
		t.Fatalf("ExtranonceFromHex: %v", err)
	}
	if got.Hex() != e.Hex() {
		t.Fatalf("round trip mismatch: got %s want %s", got.Hex(), e.Hex())
	}
}
