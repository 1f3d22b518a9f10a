package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yegors/tailtrack/internal/tracking"
	"github.com/yegors/tailtrack/pkg/logger"
)

// PlaneStorage resolves tail numbers from the plane records owned by the
// fleet subsystem.
type PlaneStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewPlaneStorage creates a new plane directory sharing the track database
func NewPlaneStorage(db *sql.DB, log *logger.Logger) (*PlaneStorage, error) {
	s := &PlaneStorage{
		db:     db,
		logger: log.Named("planes-db"),
	}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PlaneStorage) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS planes (
			id TEXT PRIMARY KEY,
			tail_number TEXT NOT NULL,
			school_id TEXT,
			model TEXT,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create planes table: %w", err)
	}
	return nil
}

// Insert adds a plane record (used by the owning subsystem and tests)
func (s *PlaneStorage) Insert(ctx context.Context, id, tailNumber, schoolID, model string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO planes (id, tail_number, school_id, model, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, strings.ToUpper(tailNumber), nullString(schoolID), nullString(model),
		formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("failed to insert plane: %w", err)
	}
	return nil
}

// TailNumber returns the tail number registered for a plane id
func (s *PlaneStorage) TailNumber(ctx context.Context, planeID string) (string, error) {
	var tail string
	err := s.db.QueryRowContext(ctx,
		`SELECT tail_number FROM planes WHERE id = ?`, planeID).Scan(&tail)
	if errors.Is(err, sql.ErrNoRows) {
		return "", tracking.ErrPlaneNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query plane: %w", err)
	}
	return tail, nil
}
