package tracking

import (
	"fmt"
	"time"

	"github.com/yegors/tailtrack/internal/upstream"
)

// Snapshot carries the upstream data gathered for one reconciliation pass.
// The service fetches only what the track's current state requires; fields
// left nil mean the corresponding fetch was skipped.
type Snapshot struct {
	// Candidates are the flight records the provider returned for the
	// track's tail number.
	Candidates []upstream.FlightRecord
	// Flight is the candidate matching the track's bound upstream flight id,
	// if any.
	Flight *upstream.FlightRecord
	// Positions is the position batch for the bound flight.
	Positions *upstream.PositionBatch
}

// Thresholds holds the time-based heuristics of the state machine. Surfaced
// as a value so tests can inject shorter windows.
type Thresholds struct {
	// InactivityTimeout is how long a non-terminal track may go without fresh
	// data before it is force-completed.
	InactivityTimeout time.Duration
}

// Outcome is the result of one reconciliation pass over a single track.
type Outcome struct {
	// Track is the new track state. The input track is never mutated.
	Track *Track
	// Changed reports whether the new state must be persisted.
	Changed bool
	// Rebound reports that the track was bound to a (new) upstream flight
	// during this pass; stored position history must be replaced, and the
	// binding re-checked for conflicts before commit.
	Rebound bool
	// NoData reports that the provider had no usable flight for an unbound
	// track; not an error, the session simply stays in Preparing.
	NoData bool
}

// Reconcile drives the track's state machine for one pass, evaluating the
// transition rules in order:
//
//  1. unbound tracks try to bind the selected flight for their tail number,
//  2. landed or terminal tracks look for a replacement flight to re-bind,
//  3. bound active tracks absorb the latest flight record and position batch,
//  4. any non-terminal track that has gone quiet past the inactivity
//     threshold is force-completed with an audit note.
//
// Pure: given identical inputs it returns identical outcomes, and the input
// track is left untouched.
func Reconcile(current *Track, snap Snapshot, now time.Time, th Thresholds) Outcome {
	t := current.Clone()
	out := Outcome{Track: t}

	switch {
	case !t.Bound():
		sel, err := SelectFlight(snap.Candidates, now)
		if err != nil || sel.Placeholder {
			// Rule 1, no usable flight: stay in Preparing. The inactivity
			// guard below still applies.
			out.NoData = true
		} else {
			bindFlight(t, sel.Flight)
			out.Changed = true
			out.Rebound = true
		}

	case t.Terminal() || landed(t, snap.Flight):
		// Rule 2: look for a replacement flight on the same tail number.
		sel, err := SelectFlight(snap.Candidates, now)
		if err == nil && !sel.Placeholder && sel.Flight.FlightID != t.UpstreamFlightID {
			resetForRebind(t)
			bindFlight(t, sel.Flight)
			t.AppendNote(fmt.Sprintf("Re-bound to replacement flight %s", t.UpstreamFlightID))
			out.Changed = true
			out.Rebound = true
		} else if !t.Terminal() {
			// Landed but not yet finalized from a prior pass.
			if snap.Flight != nil {
				applyFlight(t, snap.Flight)
			}
			complete(t, now)
			out.Changed = true
		}

	default:
		// Rule 3: bound and active.
		if snap.Flight != nil {
			applyFlight(t, snap.Flight)
			out.Changed = true
		}
		if ApplyPositionBatch(t, snap.Positions) > 0 {
			out.Changed = true
		}
		if t.ActualArrival != nil {
			complete(t, now)
			out.Changed = true
		}
	}

	// Rule 4: inactivity guard. A binding made this pass is fresh activity,
	// so a just-(re)bound track is never stale regardless of how old its
	// previous state was.
	if !t.Terminal() && !out.Rebound {
		if idle := now.Sub(t.LastActivity()); idle > th.InactivityTimeout {
			complete(t, now)
			t.AppendNote(fmt.Sprintf("Automatically completed: no activity for %d minutes (threshold %d)",
				int(idle.Minutes()), int(th.InactivityTimeout.Minutes())))
			out.Changed = true
		}
	}

	return out
}

// landed reports whether the bound flight has an actual arrival recorded,
// from this pass or a prior one.
func landed(t *Track, f *upstream.FlightRecord) bool {
	if t.ActualArrival != nil {
		return true
	}
	return f != nil && f.Landed()
}

// bindFlight binds the track to an upstream flight and absorbs its fields.
func bindFlight(t *Track, f *upstream.FlightRecord) {
	t.UpstreamFlightID = f.FlightID
	applyFlight(t, f)
}

// applyFlight copies the upstream record's fields onto the track. Timestamps
// the provider does not supply are left as previously known.
func applyFlight(t *Track, f *upstream.FlightRecord) {
	t.Status = NormalizeStatus(f.Status)

	if f.ScheduledOut != nil {
		t.ScheduledDeparture = cloneTime(f.ScheduledOut)
	}
	if f.EstimatedOut != nil {
		t.EstimatedDeparture = cloneTime(f.EstimatedOut)
	}
	if f.ActualOut != nil {
		t.ActualDeparture = cloneTime(f.ActualOut)
	}
	if f.ScheduledIn != nil {
		t.ScheduledArrival = cloneTime(f.ScheduledIn)
	}
	if f.EstimatedIn != nil {
		t.EstimatedArrival = cloneTime(f.EstimatedIn)
	}
	if f.ActualIn != nil {
		t.ActualArrival = cloneTime(f.ActualIn)
	}

	if f.OriginCode != "" && f.OriginCode != t.OriginCode {
		t.OriginCode = f.OriginCode
		t.Origin = nil
	}
	if f.DestinationCode != "" && f.DestinationCode != t.DestinationCode {
		t.DestinationCode = f.DestinationCode
		t.Destination = nil
	}

	if f.Route != "" {
		t.Route = f.Route
	}
	if f.FlightType != "" {
		t.FlightType = f.FlightType
	}
	if f.FiledDistanceNM != nil && t.DistanceNM == 0 {
		t.DistanceNM = *f.FiledDistanceNM
	}

	RecomputeDuration(t)
}

// resetForRebind clears all state belonging to the previous binding.
func resetForRebind(t *Track) {
	t.UpstreamFlightID = ""
	t.Positions = nil
	t.EndTime = nil
	t.ActualDeparture = nil
	t.ActualArrival = nil
	t.EstimatedDeparture = nil
	t.EstimatedArrival = nil
	t.ScheduledDeparture = nil
	t.ScheduledArrival = nil
	t.Origin = nil
	t.Destination = nil
	t.OriginCode = ""
	t.DestinationCode = ""
	t.Route = ""
	t.DistanceNM = 0
	t.DurationMin = 0
	t.Status = StatusPreparing
}

// complete moves the track to Completed and stamps the session end time once.
func complete(t *Track, now time.Time) {
	t.Status = StatusCompleted
	if t.EndTime == nil {
		end := now
		t.EndTime = &end
	}
}
