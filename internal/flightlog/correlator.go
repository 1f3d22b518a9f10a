// Package flightlog links tracking sessions to the flight-log records owned
// by the rest of the flight-school backend. Correlation is heuristic and
// strictly advisory: it mirrors track status outward and never feeds anything
// back into the track's own state machine.
package flightlog

import (
	"context"
	"time"

	"github.com/yegors/tailtrack/internal/tracking"
	"github.com/yegors/tailtrack/pkg/logger"
)

// Record is a flight-log entry as far as this subsystem needs to see it.
// The flight-log collection is a lookup-and-patch target, never a source of
// truth for track state.
type Record struct {
	ID           string
	StudentID    string
	InstructorID string
	TailNumber   string
	SchoolID     string
	LogDate      time.Time // start of day, UTC
	Status       string
}

// MatchQuery identifies a flight-log record by its loosely-matched fields.
type MatchQuery struct {
	StudentID    string
	InstructorID string
	TailNumber   string
	SchoolID     string
	LogDate      time.Time
}

// Store defines the flight-log collaborator operations the correlator needs.
// FindMatch returns nil with no error on a miss.
type Store interface {
	FindMatch(ctx context.Context, q MatchQuery) (*Record, error)
	UpdateStatus(ctx context.Context, id, status string) error
}

// Correlator performs the best-effort track-to-flight-log matching.
type Correlator struct {
	store  Store
	logger *logger.Logger
}

// NewCorrelator creates a new flight-log correlator
func NewCorrelator(store Store, log *logger.Logger) *Correlator {
	return &Correlator{
		store:  store,
		logger: log.Named("correlator"),
	}
}

// Propagate finds the flight-log record matching the track's references and
// session day and patches its status field. Misses and failures are logged,
// never returned: correlation must not block or alter a reconciliation pass.
func (c *Correlator) Propagate(ctx context.Context, t *tracking.Track) {
	if t.StudentID == "" || t.InstructorID == "" || t.SchoolID == "" {
		c.logger.Debug("Track has no flight-log references, skipping correlation",
			logger.String("track_id", t.ID))
		return
	}

	q := MatchQuery{
		StudentID:    t.StudentID,
		InstructorID: t.InstructorID,
		TailNumber:   t.TailNumber,
		SchoolID:     t.SchoolID,
		LogDate:      startOfDay(t.StartTime),
	}

	record, err := c.store.FindMatch(ctx, q)
	if err != nil {
		c.logger.Warn("Flight-log lookup failed",
			logger.String("track_id", t.ID), logger.Error(err))
		return
	}
	if record == nil {
		c.logger.Debug("No flight-log record matched track",
			logger.String("track_id", t.ID),
			logger.String("tail_number", t.TailNumber),
			logger.Time("log_date", q.LogDate))
		return
	}

	status := tracking.FlightLogStatus(t.Status)
	if record.Status == status {
		return
	}

	if err := c.store.UpdateStatus(ctx, record.ID, status); err != nil {
		c.logger.Warn("Failed to patch flight-log status",
			logger.String("track_id", t.ID),
			logger.String("flight_log_id", record.ID),
			logger.Error(err))
		return
	}

	c.logger.Debug("Propagated status to flight log",
		logger.String("track_id", t.ID),
		logger.String("flight_log_id", record.ID),
		logger.String("status", status))
}

// startOfDay truncates a timestamp to midnight UTC.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
