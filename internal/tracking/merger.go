package tracking

import (
	"time"

	"github.com/yegors/tailtrack/internal/physics"
	"github.com/yegors/tailtrack/internal/upstream"
)

// MergePositions appends only previously-unseen samples from an upstream batch
// onto an existing, timestamp-ordered history. A sample is unseen when its
// timestamp is strictly greater than the latest stored sample's timestamp, so
// re-applying the same batch is a no-op. Returns the merged history and the
// number of samples appended.
//
// The upstream batch is assumed already time-ordered; its order is preserved.
func MergePositions(existing []Position, batch []upstream.PositionSample) ([]Position, int) {
	var latestSeen time.Time // zero value = the epoch for an empty history
	if n := len(existing); n > 0 {
		latestSeen = existing[n-1].Timestamp
	}

	merged := existing
	appended := 0
	for _, sample := range batch {
		if !sample.Timestamp.After(latestSeen) {
			continue
		}
		merged = append(merged, convertSample(sample))
		latestSeen = sample.Timestamp
		appended++
	}

	return merged, appended
}

// convertSample converts an upstream sample into a stored position, deriving
// the magnetic heading from the true heading at the sample's position and time.
func convertSample(s upstream.PositionSample) Position {
	return Position{
		Latitude:        s.Latitude,
		Longitude:       s.Longitude,
		AltitudeFt:      s.AltitudeFt,
		GroundspeedKts:  s.GroundspeedKts,
		HeadingTrue:     s.HeadingTrue,
		HeadingMag:      physics.TrueToMagnetic(s.HeadingTrue, s.Latitude, s.Longitude, s.AltitudeFt, s.Timestamp),
		VerticalRateFPM: s.VerticalRateFPM,
		Timestamp:       s.Timestamp,
	}
}

// ApplyPositionBatch merges an upstream position batch into the track,
// overwrites the track distance with the provider's cumulative flown distance
// when reported, and recomputes the duration. Returns the number of samples
// appended.
func ApplyPositionBatch(t *Track, batch *upstream.PositionBatch) int {
	if batch == nil {
		return 0
	}

	merged, appended := MergePositions(t.Positions, batch.Positions)
	t.Positions = merged

	if batch.FlownDistanceNM != nil {
		t.DistanceNM = *batch.FlownDistanceNM
	}

	RecomputeDuration(t)
	return appended
}

// RecomputeDuration sets the track duration to the difference between actual
// departure and actual arrival, in whole minutes (floor). Leaves the duration
// untouched unless both timestamps are known.
func RecomputeDuration(t *Track) {
	if t.ActualDeparture == nil || t.ActualArrival == nil {
		return
	}
	d := t.ActualArrival.Sub(*t.ActualDeparture)
	if d < 0 {
		return
	}
	t.DurationMin = int(d.Minutes())
}
