package main

import (
	"math"
	"time"
)

const (
	vardiffMinWindowRatio = 0.8
	vardiffHysteresisLow  = 0.5
	vardiffHysteresisHigh = 1.33
)

// Vardiff is a per-session variable-difficulty controller: it watches
// the session's share rate and retargets current_diff to keep shares
// arriving at roughly one per period, while guarding against
// oscillation and honoring in-flight shares across a retarget via
// diff_change_job_id boundary gating.
type Vardiff struct {
	currentDiff Difficulty
	oldDiff     Difficulty
	dsps        *DecayingAverage
	window      time.Duration
	period      time.Duration

	firstShare    *time.Time
	lastDiffChange time.Time
	sharesSinceChange uint32

	minDiff *Difficulty
	maxDiff *Difficulty

	diffChangeJobID *JobId

	minSharesForAdjustment uint32
	minTimeForAdjustment   time.Duration
}

// NewVardiff builds a controller targeting one share roughly every
// period, starting at startDiff, averaging over window.
func NewVardiff(startDiff Difficulty, window, period time.Duration) *Vardiff {
	now := time.Now()
	minShares := uint32(float64(window/period) * vardiffMinWindowRatio)
	if minShares == 0 {
		minShares = 1
	}

	return &Vardiff{
		currentDiff:            startDiff,
		oldDiff:                startDiff,
		dsps:                   newDecayingAverageAt(window, now),
		window:                 window,
		period:                 period,
		lastDiffChange:         now,
		minSharesForAdjustment: minShares,
		minTimeForAdjustment:   time.Duration(float64(window) * vardiffMinWindowRatio),
	}
}

// SetBounds fixes the allowed difficulty range; either bound may be nil
// to leave that side unbounded.
func (v *Vardiff) SetBounds(min, max *Difficulty) {
	v.minDiff, v.maxDiff = min, max
}

// CurrentDiff returns the controller's present target difficulty.
func (v *Vardiff) CurrentDiff() Difficulty { return v.currentDiff }

// DiffChangeJobID returns the job id recorded at the last difficulty
// change, if any. Jobs issued before this id were built under the old
// difficulty.
func (v *Vardiff) DiffChangeJobID() (JobId, bool) {
	if v.diffChangeJobID == nil {
		return 0, false
	}
	return *v.diffChangeJobID, true
}

// SetDiffChangeJobID records the job id of the first job sent after a
// difficulty change, completing the boundary-gating contract: it is the
// connection's job, not Vardiff's own, to stamp this once it knows which
// job id got emitted next.
func (v *Vardiff) SetDiffChangeJobID(id JobId) {
	v.diffChangeJobID = &id
}

// PoolDiff returns the difficulty a share submitted against jobID should
// be judged at: the easier of old/current while jobID predates the
// recorded diff-change boundary, else the current difficulty. This lets
// shares already in flight when a retarget happens land at the bar they
// were issued under.
func (v *Vardiff) PoolDiff(jobID JobId) Difficulty {
	if v.diffChangeJobID != nil && jobID < *v.diffChangeJobID {
		if v.oldDiff.Float() < v.currentDiff.Float() {
			return v.oldDiff
		}
		return v.currentDiff
	}
	return v.currentDiff
}

func minDifficulty(a, b Difficulty) Difficulty {
	if a.Float() < b.Float() {
		return a
	}
	return b
}

func maxDifficulty(a, b Difficulty) Difficulty {
	if a.Float() > b.Float() {
		return a
	}
	return b
}

// RecordShare folds an accepted share into the controller and, if the
// evaluation concludes a retarget is warranted, returns the new
// difficulty. poolDiff must equal CurrentDiff() or the share is stale
// and ignored. networkDiff bounds the new difficulty from above (no
// point issuing a session difficulty harder than the network itself).
// upstreamDiff, if non-nil, additionally clamps the new difficulty (a
// proxy must never hand a downstream session an easier difficulty than
// its own upstream session).
func (v *Vardiff) RecordShare(poolDiff, networkDiff Difficulty, upstreamDiff *Difficulty) (Difficulty, bool) {
	if poolDiff.Float() != v.currentDiff.Float() {
		return Difficulty{}, false
	}

	now := time.Now()
	if v.firstShare == nil {
		t := now
		v.firstShare = &t
		v.lastDiffChange = now
	}

	v.dsps.Record(poolDiff.Float(), now)
	v.sharesSinceChange++

	if v.sharesSinceChange < v.minSharesForAdjustment && now.Sub(v.lastDiffChange) < v.minTimeForAdjustment {
		return Difficulty{}, false
	}

	elapsedSinceFirst := now.Sub(*v.firstShare)
	bias := calculateTimeBias(elapsedSinceFirst, v.window)
	if bias <= 0 {
		return Difficulty{}, false
	}

	dspsDebiased := v.dsps.ValueAt(now) / bias
	periodSecs := v.period.Seconds()
	target := 1.0 / periodSecs
	drr := dspsDebiased / v.currentDiff.Float()

	if drr > target*vardiffHysteresisLow && drr < target*vardiffHysteresisHigh {
		return Difficulty{}, false
	}

	optimal := dspsDebiased * periodSecs
	newDiffFloat := math.Min(optimal, networkDiff.Float())
	newDiff := DifficultyFromFloat(math.Max(newDiffFloat, 1e-12))

	if v.minDiff != nil {
		newDiff = maxDifficulty(newDiff, *v.minDiff)
	}
	if v.maxDiff != nil {
		newDiff = minDifficulty(newDiff, *v.maxDiff)
	}
	if upstreamDiff != nil {
		newDiff = maxDifficulty(newDiff, *upstreamDiff)
	}

	if newDiff.Float() == v.currentDiff.Float() {
		return Difficulty{}, false
	}

	if newDiff.Float() < v.currentDiff.Float() && v.sharesSinceChange == 1 {
		v.lastDiffChange = now
		return Difficulty{}, false
	}

	v.oldDiff = minDifficulty(v.oldDiff, v.currentDiff)
	v.currentDiff = newDiff
	v.sharesSinceChange = 0
	v.lastDiffChange = now

	return newDiff, true
}

// ClampToUpstream lowers current_diff to upstreamDiff when the upstream's
// session difficulty is below ours; it is a no-op when upstreamDiff is at
// or above current_diff. Returns the new difficulty if a clamp happened.
func (v *Vardiff) ClampToUpstream(upstreamDiff Difficulty) (Difficulty, bool) {
	if upstreamDiff.Float() >= v.currentDiff.Float() {
		return Difficulty{}, false
	}

	v.oldDiff = minDifficulty(v.oldDiff, v.currentDiff)
	v.currentDiff = upstreamDiff
	v.sharesSinceChange = 0
	v.lastDiffChange = time.Now()

	return v.currentDiff, true
}
