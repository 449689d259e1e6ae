package main

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	testCoinb1 = "01000000010000000000000000000000000000000000000000000000000000000000000000ffffffff03"
	testCoinb2 = "ffffffff0100f2052a01000000160014aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa00000000"
)

func testJobWithWorkbase(t *testing.T, wb Workbase, versionMask *Version) *Job {
	t.Helper()
	return NewJob(testCoinb1, testCoinb2, ExtranonceFromBytes([]byte{0x01, 0x02, 0x03, 0x04}), versionMask, wb, true)
}

// TestBuildHeader_FieldPlacement checks each field lands at its expected
// byte offset in little-endian order, and that merkleRoot is copied
// through unchanged.
func TestBuildHeader_FieldPlacement(t *testing.T) {
	job := testJobWithWorkbase(t, &fakeWorkbase{}, nil)

	var merkleRoot MerkleNode
	for i := range merkleRoot {
		merkleRoot[i] = byte(i)
	}

	header := buildHeader(job, merkleRoot, Ntime(0x5f5e1000), Nonce(0xdeadbeef), nil)

	if got := binary.LittleEndian.Uint32(header[0:4]); got != uint32(job.Workbase.Version()) {
		t.Fatalf("version field = %x, want %x", got, job.Workbase.Version())
	}

	var prevHash chainhash.Hash = job.Workbase.PrevHash()
	if string(header[4:36]) != string(prevHash[:]) {
		t.Fatalf("prevhash field mismatch")
	}

	if string(header[36:68]) != string(merkleRoot[:]) {
		t.Fatalf("merkle root field mismatch")
	}

	if got := binary.LittleEndian.Uint32(header[68:72]); got != 0x5f5e1000 {
		t.Fatalf("ntime field = %x, want 5f5e1000", got)
	}
	if got := binary.LittleEndian.Uint32(header[72:76]); got != uint32(job.Workbase.Nbits()) {
		t.Fatalf("nbits field = %x, want %x", got, job.Workbase.Nbits())
	}
	if got := binary.LittleEndian.Uint32(header[76:80]); got != 0xdeadbeef {
		t.Fatalf("nonce field = %x, want deadbeef", got)
	}
}

// TestBuildHeader_AppliesVersionRolling checks that a non-nil versionBits
// is folded through WithRolledBits rather than replacing the base
// version outright.
func TestBuildHeader_AppliesVersionRolling(t *testing.T) {
	mask := Version(0x1fffe000)
	job := testJobWithWorkbase(t, &fakeWorkbase{}, &mask)

	rolled := Version(0x1fffe000)
	header := buildHeader(job, MerkleNode{}, Ntime(0), Nonce(0), &rolled)

	want := job.Workbase.Version().WithRolledBits(mask, rolled)
	if got := binary.LittleEndian.Uint32(header[0:4]); got != uint32(want) {
		t.Fatalf("rolled version = %x, want %x", got, want)
	}
}

// TestHeaderHash_IsDoubleSHA256 checks headerHash performs exactly two
// rounds of SHA-256, matching Bitcoin's block-hashing convention.
func TestHeaderHash_IsDoubleSHA256(t *testing.T) {
	var header [blockHeaderSize]byte
	for i := range header {
		header[i] = byte(i)
	}

	got := headerHash(header)
	first := sha256Sum(header[:])
	want := sha256Sum(first[:])

	if got != want {
		t.Fatalf("headerHash mismatch: got %x want %x", got, want)
	}
}

// TestEvaluateShare_MeetsPoolButNotNetwork checks a share whose hash
// meets the easy pool target but not the harder network target is
// reported accordingly.
func TestEvaluateShare_MeetsPoolButNotNetwork(t *testing.T) {
	job := testJobWithWorkbase(t, &fakeWorkbase{}, nil)
	enonce2 := ExtranonceFromBytes([]byte{0, 0, 0, 0})

	easyTarget := TargetFromBigEndianBytes(bytes.Repeat([]byte{0xff}, 32))
	hardTarget := TargetFromBigEndianBytes([]byte{0x00})

	result, err := EvaluateShare(job, enonce2, Ntime(0), Nonce(0), nil, easyTarget, hardTarget)
	if err != nil {
		t.Fatalf("EvaluateShare: %v", err)
	}
	if !result.MeetsPool {
		t.Fatalf("expected share to meet the maximum (easiest) pool target")
	}
	if result.MeetsNetwork {
		t.Fatalf("expected share not to meet a near-zero network target")
	}
}

// TestAssembleBlockHex_TxCountAndConcatenation checks the varint
// transaction count and the exact concatenation order of header,
// reassembled coinbase, and template transactions.
func TestAssembleBlockHex_TxCountAndConcatenation(t *testing.T) {
	var header [blockHeaderSize]byte
	for i := range header {
		header[i] = 0xAB
	}
	enonce1 := ExtranonceFromBytes([]byte{0x01, 0x02, 0x03, 0x04})
	enonce2 := ExtranonceFromBytes([]byte{0x05, 0x06, 0x07, 0x08})

	nonCoinbase := []string{"aa", "bbcc"}

	got, err := assembleBlockHex(header, testCoinb1, testCoinb2, enonce1, enonce2, nonCoinbase)
	if err != nil {
		t.Fatalf("assembleBlockHex: %v", err)
	}

	headerHex := ""
	for _, b := range header {
		headerHex += hexByte(b)
	}

	wantBody := testCoinb1 + enonce1.Hex() + enonce2.Hex() + testCoinb2 + "aa" + "bbcc"
	want := headerHex + "03" + wantBody

	if got != want {
		t.Fatalf("assembleBlockHex mismatch:\ngot  %s\nwant %s", got, want)
	}
}

func hexByte(b byte) string {
	const hexDigits = "0123456789abcdef"
	return string([]byte{hexDigits[b>>4], hexDigits[b&0x0f]})
}
