package tracking

import (
	"strings"
	"testing"
	"time"

	"github.com/yegors/tailtrack/internal/upstream"
)

var testThresholds = Thresholds{InactivityTimeout: 5 * time.Minute}

func preparingTrack(now time.Time) *Track {
	return &Track{
		ID:         "trk-1",
		TailNumber: "N12345",
		Status:     StatusPreparing,
		StartTime:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestReconcileBindsUnboundTrack(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	track := preparingTrack(now)

	dep := now.Add(10 * time.Minute)
	snap := Snapshot{
		Candidates: []upstream.FlightRecord{{
			FlightID:        "F-1",
			Status:          "Scheduled",
			ScheduledOut:    &dep,
			OriginCode:      "CYTZ",
			DestinationCode: "CYKF",
		}},
	}

	out := Reconcile(track, snap, now, testThresholds)
	if !out.Changed || !out.Rebound {
		t.Fatalf("Changed=%v Rebound=%v, want both true", out.Changed, out.Rebound)
	}
	if out.Track.UpstreamFlightID != "F-1" {
		t.Errorf("UpstreamFlightID = %q, want F-1", out.Track.UpstreamFlightID)
	}
	// Pre-departure upstream label passes through unchanged.
	if out.Track.Status != "Scheduled" {
		t.Errorf("Status = %q, want Scheduled", out.Track.Status)
	}
	if out.Track.OriginCode != "CYTZ" || out.Track.DestinationCode != "CYKF" {
		t.Errorf("route codes = %q -> %q", out.Track.OriginCode, out.Track.DestinationCode)
	}
}

func TestReconcileNoDataStaysPreparing(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	track := preparingTrack(now)

	out := Reconcile(track, Snapshot{}, now, testThresholds)
	if !out.NoData {
		t.Error("expected NoData")
	}
	if out.Changed {
		t.Error("fresh track with no data should not change")
	}
	if out.Track.Status != StatusPreparing {
		t.Errorf("Status = %q, want Preparing", out.Track.Status)
	}
}

func TestReconcileInactivityCompletesStalePreparingTrack(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	track := preparingTrack(now.Add(-10 * time.Minute))

	out := Reconcile(track, Snapshot{}, now, testThresholds)
	if !out.Changed {
		t.Fatal("expected Changed")
	}
	if out.Track.Status != StatusCompleted {
		t.Errorf("Status = %q, want Completed", out.Track.Status)
	}
	if out.Track.EndTime == nil || !out.Track.EndTime.Equal(now) {
		t.Errorf("EndTime = %v, want %v", out.Track.EndTime, now)
	}
	if len(out.Track.Notes) != 1 || !strings.Contains(out.Track.Notes[0], "no activity") {
		t.Errorf("Notes = %v, want one inactivity note", out.Track.Notes)
	}
}

func TestReconcileInactivityUsesLatestSample(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	track := preparingTrack(now.Add(-30 * time.Minute))
	track.UpstreamFlightID = "F-1"
	track.Status = StatusEnRoute
	// A fresh sample keeps the session alive even though updated_at is old.
	track.Positions = []Position{{Timestamp: now.Add(-2 * time.Minute)}}

	out := Reconcile(track, Snapshot{}, now, testThresholds)
	if out.Track.Status != StatusEnRoute {
		t.Errorf("Status = %q, want En-Route (fresh sample)", out.Track.Status)
	}
}

func TestReconcileAbsorbsActiveFlightAndPositions(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	dep := now.Add(-20 * time.Minute)

	track := preparingTrack(now)
	track.UpstreamFlightID = "F-1"
	track.Status = "Scheduled"

	flight := upstream.FlightRecord{
		FlightID:  "F-1",
		Status:    "En Route / On Time",
		ActualOut: &dep,
	}
	dist := 8.2
	snap := Snapshot{
		Candidates: []upstream.FlightRecord{flight},
		Flight:     &flight,
		Positions: &upstream.PositionBatch{
			Positions: []upstream.PositionSample{
				sampleAt(now.Add(-2*time.Minute), 2000),
				sampleAt(now.Add(-1*time.Minute), 2500),
			},
			FlownDistanceNM: &dist,
		},
	}

	out := Reconcile(track, snap, now, testThresholds)
	if !out.Changed {
		t.Fatal("expected Changed")
	}
	if out.Rebound {
		t.Error("absorbing an update is not a rebind")
	}
	if out.Track.Status != StatusEnRoute {
		t.Errorf("Status = %q, want En-Route", out.Track.Status)
	}
	if len(out.Track.Positions) != 2 {
		t.Errorf("len(Positions) = %d, want 2", len(out.Track.Positions))
	}
	if out.Track.DistanceNM != dist {
		t.Errorf("DistanceNM = %v, want %v", out.Track.DistanceNM, dist)
	}
	if out.Track.ActualDeparture == nil || !out.Track.ActualDeparture.Equal(dep) {
		t.Errorf("ActualDeparture = %v, want %v", out.Track.ActualDeparture, dep)
	}
}

func TestReconcileLandingCompletesTrack(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	dep := now.Add(-90 * time.Minute)
	arr := now.Add(-3 * time.Minute)

	track := preparingTrack(now)
	track.UpstreamFlightID = "F-1"
	track.Status = StatusEnRoute
	track.ActualDeparture = &dep
	track.Positions = []Position{{Timestamp: now.Add(-4 * time.Minute)}}

	flight := upstream.FlightRecord{
		FlightID:  "F-1",
		Status:    "Arrived / Gate Arrival",
		ActualOut: &dep,
		ActualIn:  &arr,
	}
	snap := Snapshot{
		Candidates: []upstream.FlightRecord{flight},
		Flight:     &flight,
	}

	out := Reconcile(track, snap, now, testThresholds)
	if !out.Changed {
		t.Fatal("expected Changed")
	}
	if out.Track.Status != StatusCompleted {
		t.Errorf("Status = %q, want Completed", out.Track.Status)
	}
	if out.Track.EndTime == nil {
		t.Fatal("EndTime not stamped")
	}
	if out.Track.DurationMin != 87 {
		t.Errorf("DurationMin = %d, want 87", out.Track.DurationMin)
	}
}

func TestReconcileRebindsTerminalTrackToReplacementFlight(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	oldArr := now.Add(-1 * time.Hour)
	end := now.Add(-50 * time.Minute)

	track := preparingTrack(now)
	track.UpstreamFlightID = "F-OLD"
	track.Status = StatusCompleted
	track.ActualArrival = &oldArr
	track.EndTime = &end
	track.DistanceNM = 42
	track.Positions = []Position{{Timestamp: oldArr}}

	dep := now.Add(5 * time.Minute)
	replacement := upstream.FlightRecord{
		FlightID:     "F-NEW",
		Status:       "Scheduled",
		ScheduledOut: &dep,
	}
	snap := Snapshot{Candidates: []upstream.FlightRecord{replacement}}

	out := Reconcile(track, snap, now, testThresholds)
	if !out.Changed || !out.Rebound {
		t.Fatalf("Changed=%v Rebound=%v, want both true", out.Changed, out.Rebound)
	}
	if out.Track.UpstreamFlightID != "F-NEW" {
		t.Errorf("UpstreamFlightID = %q, want F-NEW", out.Track.UpstreamFlightID)
	}
	// Everything from the previous binding is gone.
	if len(out.Track.Positions) != 0 {
		t.Errorf("Positions survived rebind: %d", len(out.Track.Positions))
	}
	if out.Track.ActualArrival != nil || out.Track.EndTime != nil {
		t.Error("arrival/end time survived rebind")
	}
	if out.Track.DistanceNM != 0 {
		t.Errorf("DistanceNM = %v, want 0", out.Track.DistanceNM)
	}
	if len(out.Track.Notes) != 1 || !strings.Contains(out.Track.Notes[0], "F-NEW") {
		t.Errorf("Notes = %v, want a rebind note naming F-NEW", out.Track.Notes)
	}
	// Identity fields survive.
	if out.Track.ID != "trk-1" || out.Track.TailNumber != "N12345" {
		t.Error("track identity changed on rebind")
	}
}

func TestReconcileRebindIsFreshActivity(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	// Completed long past the inactivity window; the rebind itself is the
	// activity, so the guard must not immediately re-complete the track.
	track := preparingTrack(now.Add(-50 * time.Minute))
	track.UpstreamFlightID = "F-OLD"
	track.Status = StatusCompleted
	end := now.Add(-50 * time.Minute)
	track.EndTime = &end

	dep := now.Add(5 * time.Minute)
	replacement := upstream.FlightRecord{
		FlightID:     "F-NEW",
		Status:       "Scheduled",
		ScheduledOut: &dep,
	}
	snap := Snapshot{Candidates: []upstream.FlightRecord{replacement}}

	out := Reconcile(track, snap, now, testThresholds)
	if !out.Rebound {
		t.Fatal("expected Rebound")
	}
	if out.Track.Status != "Scheduled" {
		t.Errorf("Status = %q, want Scheduled", out.Track.Status)
	}
	if out.Track.EndTime != nil {
		t.Errorf("EndTime = %v, want nil after rebind", out.Track.EndTime)
	}
	for _, note := range out.Track.Notes {
		if strings.Contains(note, "no activity") {
			t.Errorf("inactivity note on a just-rebound track: %q", note)
		}
	}
}

func TestReconcileTerminalTrackWithoutReplacementStaysPut(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	end := now.Add(-1 * time.Hour)

	track := preparingTrack(now.Add(-2 * time.Hour))
	track.UpstreamFlightID = "F-OLD"
	track.Status = StatusCompleted
	track.EndTime = &end

	// Only the already-bound, landed flight comes back.
	arr := now.Add(-70 * time.Minute)
	snap := Snapshot{Candidates: []upstream.FlightRecord{{FlightID: "F-OLD", ActualIn: &arr}}}

	out := Reconcile(track, snap, now, testThresholds)
	if out.Changed {
		t.Error("terminal track with no replacement must not change")
	}
}

func TestReconcileDoesNotMutateInput(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	track := preparingTrack(now.Add(-10 * time.Minute))
	track.Notes = []string{"existing"}

	out := Reconcile(track, Snapshot{}, now, testThresholds)
	if out.Track == track {
		t.Fatal("outcome track aliases the input")
	}
	if track.Status != StatusPreparing {
		t.Errorf("input track status mutated to %q", track.Status)
	}
	if track.EndTime != nil {
		t.Error("input track end time mutated")
	}
	if len(track.Notes) != 1 {
		t.Errorf("input track notes mutated: %v", track.Notes)
	}
}

func TestReconcileEndTimeStampedOnce(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	end := now.Add(-20 * time.Minute)

	track := preparingTrack(now.Add(-1 * time.Hour))
	track.Status = StatusCompleted
	track.EndTime = &end

	out := Reconcile(track, Snapshot{}, now, testThresholds)
	if out.Track.EndTime == nil || !out.Track.EndTime.Equal(end) {
		t.Errorf("EndTime = %v, want original %v", out.Track.EndTime, end)
	}
}
