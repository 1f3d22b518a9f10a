package tracking

import (
	"sort"
	"time"

	"github.com/yegors/tailtrack/internal/upstream"
)

// Selection is the result of choosing which upstream flight to track for a
// tail number.
//
// When every returned flight has already landed the most recent one is handed
// back as a placeholder: the caller creates (or keeps) a non-active Preparing
// session instead of binding to it.
type Selection struct {
	Flight      *upstream.FlightRecord
	Placeholder bool
}

// SelectFlight chooses the upstream flight to track from the records the
// gateway returned for a tail number. Deterministic for identical input.
//
// Returns ErrNoUpstreamData when the flight list is empty; callers must not
// create or mutate a track in that case.
func SelectFlight(flights []upstream.FlightRecord, now time.Time) (Selection, error) {
	if len(flights) == 0 {
		return Selection{}, ErrNoUpstreamData
	}

	// Discard flights that already landed.
	candidates := make([]upstream.FlightRecord, 0, len(flights))
	for _, f := range flights {
		if !f.Landed() {
			candidates = append(candidates, f)
		}
	}

	// Every flight landed: hand back the most recent one as a placeholder.
	if len(candidates) == 0 {
		return Selection{Flight: mostRecentLanded(flights), Placeholder: true}, nil
	}

	// Prefer flights departing on the current calendar day (UTC).
	year, month, day := now.UTC().Date()
	sameDay := make([]upstream.FlightRecord, 0, len(candidates))
	for _, f := range candidates {
		dep := f.BestDeparture()
		if dep == nil {
			continue
		}
		y, m, d := dep.UTC().Date()
		if y == year && m == month && d == day {
			sameDay = append(sameDay, f)
		}
	}

	pool := sameDay
	if len(pool) == 0 {
		pool = candidates
	}

	pick := earliestDeparting(pool)
	return Selection{Flight: pick}, nil
}

// earliestDeparting returns the flight with the earliest best-known departure
// time. Flights with no departure time at all sort last; ties keep the
// provider's order (stable sort keeps selection deterministic).
func earliestDeparting(pool []upstream.FlightRecord) *upstream.FlightRecord {
	sorted := make([]upstream.FlightRecord, len(pool))
	copy(sorted, pool)

	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := sorted[i].BestDeparture(), sorted[j].BestDeparture()
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return di.Before(*dj)
		}
	})

	pick := sorted[0]
	return &pick
}

// mostRecentLanded returns the flight with the latest actual arrival.
func mostRecentLanded(flights []upstream.FlightRecord) *upstream.FlightRecord {
	best := flights[0]
	for _, f := range flights[1:] {
		if f.ActualIn != nil && (best.ActualIn == nil || f.ActualIn.After(*best.ActualIn)) {
			best = f
		}
	}
	return &best
}
