package main

import "testing"

// TestNewProxyExtranonces_RejectsUndersizedSpace checks that an extension
// size leaving too little (or negative) room for the miner's own enonce2
// is rejected rather than silently producing an unusable policy.
func TestNewProxyExtranonces_RejectsUndersizedSpace(t *testing.T) {
	upstreamEnonce1 := ExtranonceFromBytes([]byte{0x01, 0x02})

	if _, err := NewProxyExtranonces(upstreamEnonce1, 4, 5); err == nil {
		t.Fatalf("expected error when extension size exceeds upstream enonce2 size")
	}
	if _, err := NewProxyExtranonces(upstreamEnonce1, 3, 2); err == nil {
		t.Fatalf("expected error when remaining miner enonce2 space is below MinEnonceSize")
	}
}

// TestProxyExtranonces_ReconstructEnonce2ForUpstream checks the byte
// layout a proxy must reproduce: the downstream session's enonce1
// extension (everything past the shared upstream prefix) concatenated
// with the miner's own enonce2, matching what the upstream pool's own
// merkle-root math expects.
func TestProxyExtranonces_ReconstructEnonce2ForUpstream(t *testing.T) {
	upstreamEnonce1 := ExtranonceFromBytes([]byte{0xaa, 0xbb})
	policy, err := NewProxyExtranonces(upstreamEnonce1, 6, 2)
	if err != nil {
		t.Fatalf("NewProxyExtranonces: %v", err)
	}

	// A downstream session's full enonce1 is the upstream prefix plus a
	// 2-byte per-session extension.
	minerEnonce1 := ExtranonceFromBytes([]byte{0xaa, 0xbb, 0x01, 0x02})
	minerEnonce2 := ExtranonceFromBytes([]byte{0x10, 0x20, 0x30, 0x40})

	got := policy.ReconstructEnonce2ForUpstream(minerEnonce1, minerEnonce2)
	want := "0102" + "10203040"
	if got.Hex() != want {
		t.Fatalf("ReconstructEnonce2ForUpstream = %s, want %s", got.Hex(), want)
	}
	if got.Len() != policy.extensionSize+minerEnonce2.Len() {
		t.Fatalf("reconstructed enonce2 length = %d, want %d", got.Len(), policy.extensionSize+minerEnonce2.Len())
	}
}

// TestExtranonces_Enonce1Size_ProxyIncludesExtension checks that the
// policy-reported enonce1 width in proxy mode is the upstream prefix plus
// the configured extension, matching what mining.subscribe must report to
// the miner.
func TestExtranonces_Enonce1Size_ProxyIncludesExtension(t *testing.T) {
	upstreamEnonce1 := ExtranonceFromBytes([]byte{0x01, 0x02, 0x03, 0x04})
	proxy, err := NewProxyExtranonces(upstreamEnonce1, 8, 3)
	if err != nil {
		t.Fatalf("NewProxyExtranonces: %v", err)
	}
	policy := ExtranoncesFromProxy(proxy)

	if got, want := policy.Enonce1Size(), 4+3; got != want {
		t.Fatalf("Enonce1Size() = %d, want %d", got, want)
	}
	if got, want := policy.Enonce2Size(), 8-3; got != want {
		t.Fatalf("Enonce2Size() = %d, want %d", got, want)
	}
	if !policy.IsProxy() {
		t.Fatalf("expected IsProxy() true for a proxy-backed policy")
	}
}
