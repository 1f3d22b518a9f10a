package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yegors/tailtrack/internal/flightlog"
	"github.com/yegors/tailtrack/pkg/logger"
)

// FlightLogStorage is a SQLite-based view over the flight-log collection.
// The tracking core only ever looks records up and patches their status.
type FlightLogStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewFlightLogStorage creates a new flight-log storage sharing the track database
func NewFlightLogStorage(db *sql.DB, log *logger.Logger) (*FlightLogStorage, error) {
	s := &FlightLogStorage{
		db:     db,
		logger: log.Named("flightlog-db"),
	}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FlightLogStorage) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS flight_logs (
			id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			instructor_id TEXT NOT NULL,
			tail_number TEXT NOT NULL,
			school_id TEXT NOT NULL,
			log_date TIMESTAMP NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create flight_logs table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_flight_logs_match
		ON flight_logs(student_id, instructor_id, tail_number, school_id, log_date)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index on flight_logs: %w", err)
	}

	return nil
}

// Insert adds a flight-log record (used by the owning subsystem and tests)
func (s *FlightLogStorage) Insert(ctx context.Context, r *flightlog.Record) error {
	now := formatTime(time.Now().UTC())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flight_logs
			(id, student_id, instructor_id, tail_number, school_id, log_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.StudentID, r.InstructorID, r.TailNumber, r.SchoolID,
		formatTime(r.LogDate), r.Status, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert flight log: %w", err)
	}
	return nil
}

// FindMatch returns the flight-log record matching the query, or nil on a miss
func (s *FlightLogStorage) FindMatch(ctx context.Context, q flightlog.MatchQuery) (*flightlog.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, student_id, instructor_id, tail_number, school_id, log_date, status
		FROM flight_logs
		WHERE student_id = ? AND instructor_id = ? AND tail_number = ? AND school_id = ? AND log_date = ?
	`, q.StudentID, q.InstructorID, q.TailNumber, q.SchoolID, formatTime(q.LogDate))

	var r flightlog.Record
	var logDate string
	err := row.Scan(&r.ID, &r.StudentID, &r.InstructorID, &r.TailNumber, &r.SchoolID, &logDate, &r.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query flight log: %w", err)
	}

	if r.LogDate, err = parseTime(logDate); err != nil {
		return nil, fmt.Errorf("failed to parse log_date: %w", err)
	}
	return &r, nil
}

// UpdateStatus patches only the status field of a flight-log record
func (s *FlightLogStorage) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE flight_logs SET status = ?, updated_at = ? WHERE id = ?
	`, status, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to update flight log status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("flight log not found: %s", id)
	}
	return nil
}
