package main

import "fmt"

// MinEnonceSize and MaxEnonceSize bound both enonce1 and enonce2 widths,
// in either pool or proxy mode.
const (
	MinEnonceSize = 2
	MaxEnonceSize = 8
)

// PoolExtranonces is the extranonce policy for a pool operating against
// its own node: it owns the entire enonce1/enonce2 space and assigns
// enonce1 directly to each session.
type PoolExtranonces struct {
	enonce1Size int
	enonce2Size int
}

// NewPoolExtranonces validates and builds a pool-mode extranonce policy.
func NewPoolExtranonces(enonce1Size, enonce2Size int) (*PoolExtranonces, error) {
	if enonce1Size < MinEnonceSize || enonce1Size > MaxEnonceSize {
		return nil, fmt.Errorf("enonce1_size %d out of range [%d,%d]", enonce1Size, MinEnonceSize, MaxEnonceSize)
	}
	if enonce2Size < MinEnonceSize || enonce2Size > MaxEnonceSize {
		return nil, fmt.Errorf("enonce2_size %d out of range [%d,%d]", enonce2Size, MinEnonceSize, MaxEnonceSize)
	}
	return &PoolExtranonces{enonce1Size: enonce1Size, enonce2Size: enonce2Size}, nil
}

func (p *PoolExtranonces) Enonce1Size() int { return p.enonce1Size }
func (p *PoolExtranonces) Enonce2Size() int { return p.enonce2Size }

// ProxyExtranonces is the extranonce policy for a proxy relaying work
// from an upstream pool: the upstream assigns us one enonce1, and we
// carve an "extension" off the front of the upstream's enonce2 space so
// each downstream miner gets a portion of it as their own enonce1
// extension, with the remainder left as their enonce2 roll space.
type ProxyExtranonces struct {
	upstreamEnonce1      Extranonce
	downstreamEnonce2Size int
	extensionSize        int
}

// NewProxyExtranonces validates and builds a proxy-mode extranonce
// policy from the upstream's assigned enonce1 and enonce2_size, carving
// out extensionSize bytes for per-downstream-session uniqueness.
func NewProxyExtranonces(upstreamEnonce1 Extranonce, upstreamEnonce2Size, extensionSize int) (*ProxyExtranonces, error) {
	upstreamEnonce1Size := upstreamEnonce1.Len()
	if upstreamEnonce1Size < MinEnonceSize || upstreamEnonce1Size > MaxEnonceSize {
		return nil, fmt.Errorf("upstream enonce1 size %d out of range [%d,%d]", upstreamEnonce1Size, MinEnonceSize, MaxEnonceSize)
	}

	downstreamEnonce2Size := upstreamEnonce2Size - extensionSize
	if downstreamEnonce2Size < 0 {
		return nil, fmt.Errorf("upstream enonce2_size %d too small to carve out %d byte extension", upstreamEnonce2Size, extensionSize)
	}
	if downstreamEnonce2Size < MinEnonceSize || downstreamEnonce2Size > MaxEnonceSize {
		return nil, fmt.Errorf("miner enonce2 space %d out of range [%d,%d] (upstream enonce2_size %d - extension %d)",
			downstreamEnonce2Size, MinEnonceSize, MaxEnonceSize, upstreamEnonce2Size, extensionSize)
	}

	return &ProxyExtranonces{
		upstreamEnonce1:       upstreamEnonce1,
		downstreamEnonce2Size: downstreamEnonce2Size,
		extensionSize:         extensionSize,
	}, nil
}

func (p *ProxyExtranonces) UpstreamEnonce1() Extranonce { return p.upstreamEnonce1 }
func (p *ProxyExtranonces) ExtensionSize() int          { return p.extensionSize }
func (p *ProxyExtranonces) DownstreamEnonce2Size() int  { return p.downstreamEnonce2Size }

func (p *ProxyExtranonces) extendedEnonce1Size() int {
	return p.upstreamEnonce1.Len() + p.extensionSize
}

// ReconstructEnonce2ForUpstream rebuilds the enonce2 value the upstream
// expects by concatenating the downstream session's enonce1 extension
// (the bytes beyond the shared upstream enonce1 prefix) with the miner's
// own enonce2.
func (p *ProxyExtranonces) ReconstructEnonce2ForUpstream(minerEnonce1, minerEnonce2 Extranonce) Extranonce {
	upstreamSize := p.upstreamEnonce1.Len()
	extension := minerEnonce1.Bytes()[upstreamSize:]

	out := make([]byte, 0, len(extension)+minerEnonce2.Len())
	out = append(out, extension...)
	out = append(out, minerEnonce2.Bytes()...)
	return ExtranonceFromBytes(out)
}

// Extranonces is the extranonce policy in effect for a process, either
// pool-mode or proxy-mode.
type Extranonces struct {
	pool  *PoolExtranonces
	proxy *ProxyExtranonces
}

// ExtranoncesFromPool wraps a pool-mode policy.
func ExtranoncesFromPool(p *PoolExtranonces) Extranonces {
	return Extranonces{pool: p}
}

// ExtranoncesFromProxy wraps a proxy-mode policy.
func ExtranoncesFromProxy(p *ProxyExtranonces) Extranonces {
	return Extranonces{proxy: p}
}

// IsProxy reports whether this policy is proxy-mode.
func (e Extranonces) IsProxy() bool {
	return e.proxy != nil
}

// Enonce1Size reports the full enonce1 width a session is assigned:
// the configured width in pool mode, or the upstream prefix plus the
// per-session extension in proxy mode.
func (e Extranonces) Enonce1Size() int {
	if e.proxy != nil {
		return e.proxy.extendedEnonce1Size()
	}
	return e.pool.Enonce1Size()
}

// Enonce2Size reports the enonce2 width a session is told to roll
// through.
func (e Extranonces) Enonce2Size() int {
	if e.proxy != nil {
		return e.proxy.DownstreamEnonce2Size()
	}
	return e.pool.Enonce2Size()
}

// Pool returns the pool-mode policy and true, or (nil, false) in proxy mode.
func (e Extranonces) Pool() (*PoolExtranonces, bool) {
	return e.pool, e.pool != nil
}

// Proxy returns the proxy-mode policy and true, or (nil, false) in pool mode.
func (e Extranonces) Proxy() (*ProxyExtranonces, bool) {
	return e.proxy, e.proxy != nil
}
