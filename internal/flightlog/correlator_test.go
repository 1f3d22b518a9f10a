package flightlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yegors/tailtrack/internal/tracking"
	"github.com/yegors/tailtrack/pkg/logger"
)

type fakeLogStore struct {
	record     *Record
	findErr    error
	updateErr  error
	lastQuery  *MatchQuery
	updatedID  string
	updatedTo  string
	findCalls  int
	patchCalls int
}

func (s *fakeLogStore) FindMatch(_ context.Context, q MatchQuery) (*Record, error) {
	s.findCalls++
	s.lastQuery = &q
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.record, nil
}

func (s *fakeLogStore) UpdateStatus(_ context.Context, id, status string) error {
	s.patchCalls++
	s.updatedID = id
	s.updatedTo = status
	return s.updateErr
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json"})
	if err != nil {
		t.Fatalf("create logger: %v", err)
	}
	return log
}

func testTrack() *tracking.Track {
	return &tracking.Track{
		ID:           "trk-1",
		TailNumber:   "N12345",
		SchoolID:     "school-1",
		InstructorID: "instr-1",
		StudentID:    "stud-1",
		Status:       tracking.StatusCompleted,
		StartTime:    time.Date(2026, 3, 14, 14, 30, 0, 0, time.UTC),
	}
}

func TestPropagatePatchesMatchedRecord(t *testing.T) {
	store := &fakeLogStore{
		record: &Record{ID: "log-1", Status: "In-Flight"},
	}
	c := NewCorrelator(store, testLogger(t))

	c.Propagate(context.Background(), testTrack())

	if store.patchCalls != 1 {
		t.Fatalf("patchCalls = %d, want 1", store.patchCalls)
	}
	if store.updatedID != "log-1" {
		t.Errorf("updated id = %q, want log-1", store.updatedID)
	}
	if store.updatedTo != tracking.LogStatusCompleted {
		t.Errorf("updated status = %q, want %q", store.updatedTo, tracking.LogStatusCompleted)
	}
	// The lookup uses the session's start-of-day, not the raw start time.
	wantDate := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if !store.lastQuery.LogDate.Equal(wantDate) {
		t.Errorf("LogDate = %v, want %v", store.lastQuery.LogDate, wantDate)
	}
}

func TestPropagateSkipsTracksWithoutReferences(t *testing.T) {
	store := &fakeLogStore{}
	c := NewCorrelator(store, testLogger(t))

	track := testTrack()
	track.StudentID = ""
	c.Propagate(context.Background(), track)

	if store.findCalls != 0 {
		t.Errorf("findCalls = %d, want 0", store.findCalls)
	}
}

func TestPropagateMissIsNotAnError(t *testing.T) {
	store := &fakeLogStore{record: nil}
	c := NewCorrelator(store, testLogger(t))

	c.Propagate(context.Background(), testTrack())

	if store.patchCalls != 0 {
		t.Errorf("patchCalls = %d, want 0 on a miss", store.patchCalls)
	}
}

func TestPropagateSkipsNoOpStatus(t *testing.T) {
	store := &fakeLogStore{
		record: &Record{ID: "log-1", Status: tracking.LogStatusCompleted},
	}
	c := NewCorrelator(store, testLogger(t))

	c.Propagate(context.Background(), testTrack())

	if store.patchCalls != 0 {
		t.Errorf("patchCalls = %d, want 0 when status already matches", store.patchCalls)
	}
}

func TestPropagateSwallowsStoreFailures(t *testing.T) {
	// Neither lookup nor patch failures may escape; correlation is advisory.
	for _, store := range []*fakeLogStore{
		{findErr: errors.New("db down")},
		{record: &Record{ID: "log-1", Status: "In-Flight"}, updateErr: errors.New("db down")},
	} {
		c := NewCorrelator(store, testLogger(t))
		c.Propagate(context.Background(), testTrack())
	}
}

func TestPropagateStatusMapping(t *testing.T) {
	tests := []struct {
		trackStatus string
		want        string
	}{
		{tracking.StatusPreparing, tracking.LogStatusInFlight},
		{tracking.StatusEnRoute, tracking.LogStatusInFlight},
		{tracking.StatusCompleted, tracking.LogStatusCompleted},
		{tracking.StatusCancelled, tracking.LogStatusCanceled},
		{"Diverted", tracking.LogStatusScheduled},
	}

	for _, tt := range tests {
		t.Run(tt.trackStatus, func(t *testing.T) {
			store := &fakeLogStore{record: &Record{ID: "log-1", Status: "stale"}}
			c := NewCorrelator(store, testLogger(t))

			track := testTrack()
			track.Status = tt.trackStatus
			c.Propagate(context.Background(), track)

			if store.updatedTo != tt.want {
				t.Errorf("status %q propagated as %q, want %q", tt.trackStatus, store.updatedTo, tt.want)
			}
		})
	}
}
