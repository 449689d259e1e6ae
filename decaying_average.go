package main

import (
	"math"
	"sync"
	"time"
)

// exponentialSaturation computes 1 - e^(-x) with numerical stability,
// clamping the argument so the result never rounds to exactly 1.0 in a
// way that later divides by zero. Beyond x=36, e^(-x) is below
// float64 epsilon and the unclamped form would round to 1.0 anyway.
func exponentialSaturation(x float64) float64 {
	if x > 36.0 {
		x = 36.0
	}
	return -math.Expm1(-x)
}

// calculateTimeBias returns a value in [0,1) describing how much of
// window has elapsed, saturating toward 1.0 as elapsed grows past window.
func calculateTimeBias(elapsed, window time.Duration) float64 {
	if window <= 0 {
		panic("window must be non-zero")
	}
	return exponentialSaturation(elapsed.Seconds() / window.Seconds())
}

// DecayingAverage is an exponential moving average of a rate, sampled at
// irregular intervals. It underlies per-session hashrate estimation: each
// accepted share records its difficulty as a sample, and value_at lets a
// reader compute the current estimate without waiting for the next share.
type DecayingAverage struct {
	value      float64
	window     time.Duration
	lastUpdate time.Time
}

// NewDecayingAverage creates a zero-valued average over window, anchored
// at the current time.
func NewDecayingAverage(window time.Duration) *DecayingAverage {
	return newDecayingAverageAt(window, time.Now())
}

func newDecayingAverageAt(window time.Duration, start time.Time) *DecayingAverage {
	if window <= 0 {
		panic("window must be non-zero")
	}
	return &DecayingAverage{window: window, lastUpdate: start}
}

// Record folds sample (a rate-generating quantity, e.g. share difficulty)
// into the average as of now. Non-positive elapsed time is ignored rather
// than treated as an error, since clock skew or duplicate timestamps are
// routine on a hot share-submission path.
func (d *DecayingAverage) Record(sample float64, now time.Time) {
	elapsed := now.Sub(d.lastUpdate).Seconds()
	if elapsed <= 0 {
		return
	}

	windowSecs := d.window.Seconds()
	decayFactor := exponentialSaturation(elapsed / windowSecs)
	normalizer := 1.0 + decayFactor

	d.value = (d.value + (sample/elapsed)*decayFactor) / normalizer
	d.lastUpdate = now
}

// ValueAt returns the average's current estimate as of now, decaying the
// stored value toward zero for the time elapsed since the last Record.
// Calling this repeatedly with the same now is idempotent.
func (d *DecayingAverage) ValueAt(now time.Time) float64 {
	elapsed := now.Sub(d.lastUpdate).Seconds()
	if elapsed <= 0 {
		return d.value
	}

	ratio := elapsed / d.window.Seconds()
	return d.value * (1.0 - exponentialSaturation(ratio))
}

const (
	decayWindow1m = time.Minute
	decayWindow5m = 5 * time.Minute
	decayWindow1h = time.Hour
	decayWindow1d = 24 * time.Hour
	decayWindow7d = 7 * 24 * time.Hour
)

// HashRate is a difficulty-share-per-second rate converted to hashes per
// second under the convention that one difficulty-1 share represents
// 2^32 expected hash attempts.
type HashRate float64

// HashRateFromDiffPerSecond converts a decaying-average sample rate
// (difficulty units per second) into an estimated hash rate.
func HashRateFromDiffPerSecond(dsps float64) HashRate {
	return HashRate(dsps * (1 << 32))
}

// HashRates tracks a session's (or the pool's) accepted-share rate over
// five rolling windows simultaneously, matching the horizons a miner or
// dashboard typically wants: 1m, 5m, 1h, 1d, 7d.
type HashRates struct {
	dsps1m *DecayingAverage
	dsps5m *DecayingAverage
	dsps1h *DecayingAverage
	dsps1d *DecayingAverage
	dsps7d *DecayingAverage
}

// NewHashRates builds a fresh, zero-valued set of rolling windows.
func NewHashRates() *HashRates {
	return &HashRates{
		dsps1m: NewDecayingAverage(decayWindow1m),
		dsps5m: NewDecayingAverage(decayWindow5m),
		dsps1h: NewDecayingAverage(decayWindow1h),
		dsps1d: NewDecayingAverage(decayWindow1d),
		dsps7d: NewDecayingAverage(decayWindow7d),
	}
}

// Record folds an accepted share's difficulty into all five windows.
func (h *HashRates) Record(difficulty float64, now time.Time) {
	h.dsps1m.Record(difficulty, now)
	h.dsps5m.Record(difficulty, now)
	h.dsps1h.Record(difficulty, now)
	h.dsps1d.Record(difficulty, now)
	h.dsps7d.Record(difficulty, now)
}

func (h *HashRates) HashRate1m(now time.Time) HashRate { return HashRateFromDiffPerSecond(h.dsps1m.ValueAt(now)) }
func (h *HashRates) HashRate5m(now time.Time) HashRate { return HashRateFromDiffPerSecond(h.dsps5m.ValueAt(now)) }
func (h *HashRates) HashRate1h(now time.Time) HashRate { return HashRateFromDiffPerSecond(h.dsps1h.ValueAt(now)) }
func (h *HashRates) HashRate1d(now time.Time) HashRate { return HashRateFromDiffPerSecond(h.dsps1d.ValueAt(now)) }
func (h *HashRates) HashRate7d(now time.Time) HashRate { return HashRateFromDiffPerSecond(h.dsps7d.ValueAt(now)) }

// SharedHashRates wraps HashRates with a mutex so it can be updated from
// the connection's read loop and read from a status/reporting path
// concurrently.
type SharedHashRates struct {
	mu   sync.Mutex
	rate *HashRates
}

// NewSharedHashRates builds a mutex-guarded HashRates.
func NewSharedHashRates() *SharedHashRates {
	return &SharedHashRates{rate: NewHashRates()}
}

// Record folds an accepted share's difficulty into all windows.
func (s *SharedHashRates) Record(difficulty float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate.Record(difficulty, time.Now())
}

func (s *SharedHashRates) HashRate1m() HashRate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate.HashRate1m(time.Now())
}

func (s *SharedHashRates) HashRate5m() HashRate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate.HashRate5m(time.Now())
}

func (s *SharedHashRates) HashRate1h() HashRate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate.HashRate1h(time.Now())
}

func (s *SharedHashRates) HashRate1d() HashRate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate.HashRate1d(time.Now())
}

func (s *SharedHashRates) HashRate7d() HashRate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate.HashRate7d(time.Now())
}
