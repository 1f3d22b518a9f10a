package tracking

import (
	"testing"
	"time"

	"github.com/yegors/tailtrack/internal/upstream"
)

func sampleAt(ts time.Time, alt float64) upstream.PositionSample {
	return upstream.PositionSample{
		Latitude:   43.65,
		Longitude:  -79.38,
		AltitudeFt: alt,
		Timestamp:  ts,
	}
}

func TestMergePositionsAppendsOnlyNewSamples(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	existing := []Position{
		{Timestamp: base, AltitudeFt: 1000},
		{Timestamp: base.Add(1 * time.Minute), AltitudeFt: 1500},
	}

	batch := []upstream.PositionSample{
		sampleAt(base, 1000),                    // already seen
		sampleAt(base.Add(1*time.Minute), 1500), // already seen
		sampleAt(base.Add(2*time.Minute), 2000), // new
		sampleAt(base.Add(3*time.Minute), 2500), // new
	}

	merged, appended := MergePositions(existing, batch)
	if appended != 2 {
		t.Errorf("appended = %d, want 2", appended)
	}
	if len(merged) != 4 {
		t.Fatalf("len(merged) = %d, want 4", len(merged))
	}
	for i := 1; i < len(merged); i++ {
		if !merged[i].Timestamp.After(merged[i-1].Timestamp) {
			t.Errorf("merged history not strictly increasing at index %d", i)
		}
	}
}

func TestMergePositionsIdempotent(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	batch := []upstream.PositionSample{
		sampleAt(base, 1000),
		sampleAt(base.Add(time.Minute), 1500),
		sampleAt(base.Add(2*time.Minute), 2000),
	}

	merged, appended := MergePositions(nil, batch)
	if appended != 3 {
		t.Fatalf("first merge appended = %d, want 3", appended)
	}

	// Re-applying the identical batch must be a no-op.
	again, appended := MergePositions(merged, batch)
	if appended != 0 {
		t.Errorf("second merge appended = %d, want 0", appended)
	}
	if len(again) != 3 {
		t.Errorf("len after re-merge = %d, want 3", len(again))
	}
}

func TestMergePositionsIgnoresEqualTimestamp(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	existing := []Position{{Timestamp: base}}
	// Same timestamp, different payload: still not appended.
	merged, appended := MergePositions(existing, []upstream.PositionSample{sampleAt(base, 9999)})
	if appended != 0 || len(merged) != 1 {
		t.Errorf("appended = %d len = %d, want 0 and 1", appended, len(merged))
	}
}

func TestApplyPositionBatchOverwritesDistance(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	dist1 := 12.5
	dist2 := 18.3

	track := &Track{DistanceNM: dist1}
	batch := &upstream.PositionBatch{
		Positions:       []upstream.PositionSample{sampleAt(base, 1000)},
		FlownDistanceNM: &dist2,
	}

	if appended := ApplyPositionBatch(track, batch); appended != 1 {
		t.Errorf("appended = %d, want 1", appended)
	}
	// Cumulative distance overwrites, never accumulates.
	if track.DistanceNM != dist2 {
		t.Errorf("DistanceNM = %v, want %v", track.DistanceNM, dist2)
	}
}

func TestApplyPositionBatchKeepsDistanceWhenNotReported(t *testing.T) {
	track := &Track{DistanceNM: 42.0}
	batch := &upstream.PositionBatch{}

	ApplyPositionBatch(track, batch)
	if track.DistanceNM != 42.0 {
		t.Errorf("DistanceNM = %v, want 42.0", track.DistanceNM)
	}
}

func TestApplyPositionBatchNil(t *testing.T) {
	track := &Track{}
	if appended := ApplyPositionBatch(track, nil); appended != 0 {
		t.Errorf("appended = %d, want 0", appended)
	}
}

func TestRecomputeDuration(t *testing.T) {
	dep := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		arr  time.Duration
		want int
	}{
		{"whole hours", 2 * time.Hour, 120},
		{"floors partial minutes", 90*time.Minute + 59*time.Second, 90},
		{"under a minute", 30 * time.Second, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arr := dep.Add(tt.arr)
			track := &Track{ActualDeparture: &dep, ActualArrival: &arr}
			RecomputeDuration(track)
			if track.DurationMin != tt.want {
				t.Errorf("DurationMin = %d, want %d", track.DurationMin, tt.want)
			}
		})
	}
}

func TestRecomputeDurationNeedsBothActuals(t *testing.T) {
	dep := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	track := &Track{ActualDeparture: &dep, DurationMin: 55}
	RecomputeDuration(track)
	if track.DurationMin != 55 {
		t.Errorf("DurationMin = %d, want 55 (untouched)", track.DurationMin)
	}
}
