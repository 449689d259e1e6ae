package main

import (
	"testing"
	"time"
)

// TestVardiff_PoolDiff_BoundaryGating checks that shares submitted against
// a job id older than the recorded diff-change boundary are judged at the
// easier of old/current difficulty, while jobs at or after the boundary use
// current_diff.
func TestVardiff_PoolDiff_BoundaryGating(t *testing.T) {
	v := NewVardiff(DifficultyFromFloat(100), time.Minute, time.Second)
	v.oldDiff = DifficultyFromFloat(50)
	v.currentDiff = DifficultyFromFloat(100)
	v.SetDiffChangeJobID(JobId(10))

	if got := v.PoolDiff(JobId(5)); got.Float() != v.oldDiff.Float() {
		t.Fatalf("job before boundary: PoolDiff = %v, want old diff %v", got.Float(), v.oldDiff.Float())
	}
	if got := v.PoolDiff(JobId(10)); got.Float() != v.currentDiff.Float() {
		t.Fatalf("job at boundary: PoolDiff = %v, want current diff %v", got.Float(), v.currentDiff.Float())
	}
	if got := v.PoolDiff(JobId(20)); got.Float() != v.currentDiff.Float() {
		t.Fatalf("job after boundary: PoolDiff = %v, want current diff %v", got.Float(), v.currentDiff.Float())
	}
}

// TestVardiff_RecordShare_IgnoresStaleShare ensures a share evaluated at a
// pool diff other than the controller's current diff (i.e. issued under a
// superseded difficulty) never triggers a retarget.
func TestVardiff_RecordShare_IgnoresStaleShare(t *testing.T) {
	v := NewVardiff(DifficultyFromFloat(100), time.Minute, time.Second)
	stale := DifficultyFromFloat(50)

	if _, changed := v.RecordShare(stale, DifficultyFromFloat(1e9), nil); changed {
		t.Fatalf("RecordShare with stale poolDiff must not change difficulty")
	}
}

// TestVardiff_RecordShare_GatedBeforeMinShares verifies that a single
// share, well short of minSharesForAdjustment and minTimeForAdjustment,
// does not trigger a retarget.
func TestVardiff_RecordShare_GatedBeforeMinShares(t *testing.T) {
	v := NewVardiff(DifficultyFromFloat(100), time.Hour, time.Second)

	_, changed := v.RecordShare(DifficultyFromFloat(100), DifficultyFromFloat(1e9), nil)
	if changed {
		t.Fatalf("first share inside the minimum adjustment window must not retarget")
	}
	if v.CurrentDiff().Float() != 100 {
		t.Fatalf("difficulty must remain unchanged inside the minimum adjustment window, got %v", v.CurrentDiff().Float())
	}
}

// TestVardiff_ClampToUpstream_NoopWhenUpstreamHarder confirms the clamp
// only forces the session diff down, never up, and is a no-op when the
// upstream diff is already at or above the session's current diff.
func TestVardiff_ClampToUpstream_NoopWhenUpstreamHarder(t *testing.T) {
	v := NewVardiff(DifficultyFromFloat(100), time.Minute, time.Second)

	if _, changed := v.ClampToUpstream(DifficultyFromFloat(200)); changed {
		t.Fatalf("ClampToUpstream must not raise difficulty above current")
	}
	if _, changed := v.ClampToUpstream(DifficultyFromFloat(100)); changed {
		t.Fatalf("ClampToUpstream must be a no-op when upstream equals current")
	}

	newDiff, changed := v.ClampToUpstream(DifficultyFromFloat(10))
	if !changed {
		t.Fatalf("ClampToUpstream must clamp down when upstream is easier")
	}
	if newDiff.Float() != 10 {
		t.Fatalf("ClampToUpstream result = %v, want 10", newDiff.Float())
	}
	if v.CurrentDiff().Float() != 10 {
		t.Fatalf("CurrentDiff not updated after clamp: got %v", v.CurrentDiff().Float())
	}
}

// TestVardiff_SetBounds_ClampsRetarget ensures a configured max bound caps
// an otherwise-warranted upward retarget.
func TestVardiff_SetBounds_ClampsRetarget(t *testing.T) {
	v := NewVardiff(DifficultyFromFloat(1), 200*time.Millisecond, 10*time.Millisecond)
	maxDiff := DifficultyFromFloat(2)
	v.SetBounds(nil, &maxDiff)

	var lastDiff Difficulty
	var sawChange bool
	for i := 0; i < 200; i++ {
		if d, changed := v.RecordShare(v.CurrentDiff(), DifficultyFromFloat(1e9), nil); changed {
			lastDiff = d
			sawChange = true
		}
		time.Sleep(time.Millisecond)
	}

	if sawChange && lastDiff.Float() > maxDiff.Float()+1e-9 {
		t.Fatalf("retarget exceeded configured max bound: got %v, max %v", lastDiff.Float(), maxDiff.Float())
	}
}
