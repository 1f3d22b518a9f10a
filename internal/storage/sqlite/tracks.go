package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yegors/tailtrack/internal/tracking"
	"github.com/yegors/tailtrack/pkg/logger"
	_ "modernc.org/sqlite"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200

	// sqlTimeFormat is fixed-width so stored timestamps compare correctly as
	// text (ORDER BY, MAX); RFC3339Nano drops trailing zeros and would make
	// "…05.5Z" sort before "…05Z".
	sqlTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

// TrackStorage is a SQLite-based storage for tracking sessions
type TrackStorage struct {
	db                *sql.DB
	logger            *logger.Logger
	maxPositionsInAPI int
}

// NewTrackStorage creates a new SQLite-based track storage
func NewTrackStorage(dbPath string, maxPositionsInAPI int, log *logger.Logger) (*TrackStorage, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	// Open the database
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool limits
	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	// Set pragmas for better performance and concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Create tables if they don't exist
	if err := initDatabase(db, storageLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &TrackStorage{
		db:                db,
		logger:            storageLogger,
		maxPositionsInAPI: maxPositionsInAPI,
	}, nil
}

// Close closes the database connection
func (s *TrackStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetDB returns the database connection
func (s *TrackStorage) GetDB() *sql.DB {
	return s.db
}

// initDatabase initializes the database schema
func initDatabase(db *sql.DB, log *logger.Logger) error {
	log.Info("Initializing database schema")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tracks (
			id TEXT PRIMARY KEY,
			upstream_flight_id TEXT,
			tail_number TEXT NOT NULL,
			school_id TEXT,
			plane_id TEXT,
			instructor_id TEXT,
			student_id TEXT,
			status TEXT NOT NULL,
			start_time TIMESTAMP NOT NULL,
			end_time TIMESTAMP,
			sched_departure TIMESTAMP,
			est_departure TIMESTAMP,
			actual_departure TIMESTAMP,
			sched_arrival TIMESTAMP,
			est_arrival TIMESTAMP,
			actual_arrival TIMESTAMP,
			origin_code TEXT,
			destination_code TEXT,
			origin_json TEXT,
			destination_json TEXT,
			route TEXT,
			flight_type TEXT,
			distance_nm REAL NOT NULL DEFAULT 0,
			duration_min INTEGER NOT NULL DEFAULT 0,
			poll_interval_secs INTEGER NOT NULL DEFAULT 0,
			notes TEXT,
			version INTEGER NOT NULL DEFAULT 1,
			deleted INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create tracks table: %w", err)
	}

	// Authoritative guard against two sessions binding the same upstream
	// flight: NULL bindings (Preparing sessions) are exempt.
	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_tracks_upstream_flight
		ON tracks(upstream_flight_id)
		WHERE upstream_flight_id IS NOT NULL AND deleted = 0
	`)
	if err != nil {
		return fmt.Errorf("failed to create unique index on tracks.upstream_flight_id: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS track_positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			track_id TEXT NOT NULL,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			alt_ft REAL,
			gs_kts REAL,
			heading_true REAL,
			heading_mag REAL,
			vertical_rate_fpm REAL,
			timestamp TIMESTAMP NOT NULL,
			FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE,
			UNIQUE(track_id, timestamp)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create track_positions table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_tracks_tail_number ON tracks(tail_number)`,
		`CREATE INDEX IF NOT EXISTS idx_tracks_status ON tracks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tracks_start_time ON tracks(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_track_positions_track_ts ON track_positions(track_id, timestamp)`,
	}
	for _, stmt := range indexes {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	log.Info("Database schema initialized successfully")
	return nil
}

// Create inserts a new track and its initial position history
func (s *TrackStorage) Create(ctx context.Context, t *tracking.Track) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tracks (
			id, upstream_flight_id, tail_number, school_id, plane_id,
			instructor_id, student_id, status, start_time, end_time,
			sched_departure, est_departure, actual_departure,
			sched_arrival, est_arrival, actual_arrival,
			origin_code, destination_code, origin_json, destination_json,
			route, flight_type, distance_nm, duration_min, poll_interval_secs,
			notes, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`,
		t.ID, nullString(t.UpstreamFlightID), t.TailNumber,
		nullString(t.SchoolID), nullString(t.PlaneID),
		nullString(t.InstructorID), nullString(t.StudentID),
		t.Status, formatTime(t.StartTime), formatTimePtr(t.EndTime),
		formatTimePtr(t.ScheduledDeparture), formatTimePtr(t.EstimatedDeparture), formatTimePtr(t.ActualDeparture),
		formatTimePtr(t.ScheduledArrival), formatTimePtr(t.EstimatedArrival), formatTimePtr(t.ActualArrival),
		nullString(t.OriginCode), nullString(t.DestinationCode),
		airportJSON(t.Origin), airportJSON(t.Destination),
		nullString(t.Route), nullString(t.FlightType),
		t.DistanceNM, t.DurationMin, t.PollIntervalSecs,
		notesJSON(t.Notes), formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return bindingConflict(ctx, tx, t.UpstreamFlightID)
		}
		return fmt.Errorf("failed to insert track: %w", err)
	}

	if err := insertPositions(ctx, tx, t.ID, t.Positions); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	t.Version = 1
	return nil
}

// Get returns one track by id, including its position history
func (s *TrackStorage) Get(ctx context.Context, id string) (*tracking.Track, error) {
	row := s.db.QueryRowContext(ctx, selectTrackSQL+` WHERE id = ? AND deleted = 0`, id)

	t, err := scanTrack(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tracking.ErrTrackNotFound
		}
		return nil, fmt.Errorf("failed to query track: %w", err)
	}

	if err := s.loadPositions(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// FindByUpstreamFlightID returns the non-deleted track bound to the given
// upstream flight id, or nil when none exists
func (s *TrackStorage) FindByUpstreamFlightID(ctx context.Context, flightID string) (*tracking.Track, error) {
	row := s.db.QueryRowContext(ctx, selectTrackSQL+` WHERE upstream_flight_id = ? AND deleted = 0`, flightID)

	t, err := scanTrack(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query track by upstream flight id: %w", err)
	}
	return t, nil
}

// Update persists a track under an optimistic version check: a concurrent
// writer that committed first makes this call fail with ErrStaleTrack.
// resetPositions replaces the stored history (re-binding); otherwise only
// samples newer than the latest stored timestamp are appended.
func (s *TrackStorage) Update(ctx context.Context, t *tracking.Track, resetPositions bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE tracks SET
			upstream_flight_id = ?, status = ?, end_time = ?,
			sched_departure = ?, est_departure = ?, actual_departure = ?,
			sched_arrival = ?, est_arrival = ?, actual_arrival = ?,
			origin_code = ?, destination_code = ?, origin_json = ?, destination_json = ?,
			route = ?, flight_type = ?, distance_nm = ?, duration_min = ?,
			poll_interval_secs = ?, notes = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND deleted = 0
	`,
		nullString(t.UpstreamFlightID), t.Status, formatTimePtr(t.EndTime),
		formatTimePtr(t.ScheduledDeparture), formatTimePtr(t.EstimatedDeparture), formatTimePtr(t.ActualDeparture),
		formatTimePtr(t.ScheduledArrival), formatTimePtr(t.EstimatedArrival), formatTimePtr(t.ActualArrival),
		nullString(t.OriginCode), nullString(t.DestinationCode),
		airportJSON(t.Origin), airportJSON(t.Destination),
		nullString(t.Route), nullString(t.FlightType), t.DistanceNM, t.DurationMin,
		t.PollIntervalSecs, notesJSON(t.Notes), formatTime(now),
		t.ID, t.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return bindingConflict(ctx, tx, t.UpstreamFlightID)
		}
		return fmt.Errorf("failed to update track: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM tracks WHERE id = ? AND deleted = 0`, t.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check track existence: %w", err)
		}
		if exists == 0 {
			return tracking.ErrTrackNotFound
		}
		return tracking.ErrStaleTrack
	}

	if resetPositions {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM track_positions WHERE track_id = ?`, t.ID); err != nil {
			return fmt.Errorf("failed to reset positions: %w", err)
		}
	}
	if err := insertPositions(ctx, tx, t.ID, t.Positions); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	t.Version++
	t.UpdatedAt = now
	return nil
}

// List returns one page of tracks matching the filter, newest sessions first
func (s *TrackStorage) List(ctx context.Context, filter tracking.TrackFilter) (*tracking.TrackPage, error) {
	where, args := buildFilter(filter)

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tracks `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count tracks: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	query := selectTrackSQL + ` ` + where + ` ORDER BY start_time DESC, id LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	tracks := make([]*tracking.Track, 0)
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track row: %w", err)
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating track rows: %w", err)
	}

	for _, t := range tracks {
		if err := s.loadPositions(ctx, t); err != nil {
			return nil, err
		}
	}

	return &tracking.TrackPage{
		Tracks:   tracks,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// buildFilter assembles the WHERE clause for a track listing
func buildFilter(filter tracking.TrackFilter) (string, []interface{}) {
	clauses := []string{"deleted = 0"}
	args := make([]interface{}, 0)

	if filter.TailNumber != "" {
		clauses = append(clauses, "tail_number = ?")
		args = append(args, strings.ToUpper(filter.TailNumber))
	}
	if filter.SchoolID != "" {
		clauses = append(clauses, "school_id = ?")
		args = append(args, filter.SchoolID)
	}
	if filter.PlaneID != "" {
		clauses = append(clauses, "plane_id = ?")
		args = append(args, filter.PlaneID)
	}
	if filter.InstructorID != "" {
		clauses = append(clauses, "instructor_id = ?")
		args = append(args, filter.InstructorID)
	}
	if filter.StudentID != "" {
		clauses = append(clauses, "student_id = ?")
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.From != nil {
		clauses = append(clauses, "start_time >= ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		clauses = append(clauses, "start_time <= ?")
		args = append(args, formatTime(*filter.To))
	}
	if filter.Search != "" {
		needle := "%" + filter.Search + "%"
		clauses = append(clauses,
			"(tail_number LIKE ? OR route LIKE ? OR origin_code LIKE ? OR destination_code LIKE ? OR notes LIKE ?)")
		args = append(args, needle, needle, needle, needle, needle)
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

const selectTrackSQL = `
	SELECT id, upstream_flight_id, tail_number, school_id, plane_id,
		instructor_id, student_id, status, start_time, end_time,
		sched_departure, est_departure, actual_departure,
		sched_arrival, est_arrival, actual_arrival,
		origin_code, destination_code, origin_json, destination_json,
		route, flight_type, distance_nm, duration_min, poll_interval_secs,
		notes, version, created_at, updated_at
	FROM tracks`

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTrack scans one track row (positions not included)
func scanTrack(row rowScanner) (*tracking.Track, error) {
	var t tracking.Track
	var upstreamFlightID, schoolID, planeID, instructorID, studentID sql.NullString
	var endTime, schedDep, estDep, actDep, schedArr, estArr, actArr sql.NullString
	var originCode, destCode, originJSON, destJSON, route, flightType, notes sql.NullString
	var startTime, createdAt, updatedAt string

	if err := row.Scan(
		&t.ID, &upstreamFlightID, &t.TailNumber, &schoolID, &planeID,
		&instructorID, &studentID, &t.Status, &startTime, &endTime,
		&schedDep, &estDep, &actDep,
		&schedArr, &estArr, &actArr,
		&originCode, &destCode, &originJSON, &destJSON,
		&route, &flightType, &t.DistanceNM, &t.DurationMin, &t.PollIntervalSecs,
		&notes, &t.Version, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	t.UpstreamFlightID = upstreamFlightID.String
	t.SchoolID = schoolID.String
	t.PlaneID = planeID.String
	t.InstructorID = instructorID.String
	t.StudentID = studentID.String
	t.OriginCode = originCode.String
	t.DestinationCode = destCode.String
	t.Route = route.String
	t.FlightType = flightType.String

	var err error
	if t.StartTime, err = parseTime(startTime); err != nil {
		return nil, fmt.Errorf("failed to parse start_time: %w", err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	for _, field := range []struct {
		src sql.NullString
		dst **time.Time
	}{
		{endTime, &t.EndTime},
		{schedDep, &t.ScheduledDeparture},
		{estDep, &t.EstimatedDeparture},
		{actDep, &t.ActualDeparture},
		{schedArr, &t.ScheduledArrival},
		{estArr, &t.EstimatedArrival},
		{actArr, &t.ActualArrival},
	} {
		if !field.src.Valid {
			continue
		}
		ts, err := parseTime(field.src.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}
		*field.dst = &ts
	}

	if originJSON.Valid {
		t.Origin = parseAirportJSON(originJSON.String)
	}
	if destJSON.Valid {
		t.Destination = parseAirportJSON(destJSON.String)
	}
	if notes.Valid && notes.String != "" {
		if err := json.Unmarshal([]byte(notes.String), &t.Notes); err != nil {
			return nil, fmt.Errorf("failed to parse notes: %w", err)
		}
	}

	return &t, nil
}

// loadPositions populates the track's position history, limited to the most
// recent maxPositionsInAPI samples in ascending timestamp order
func (s *TrackStorage) loadPositions(ctx context.Context, t *tracking.Track) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT lat, lon, alt_ft, gs_kts, heading_true, heading_mag, vertical_rate_fpm, timestamp
		FROM (
			SELECT lat, lon, alt_ft, gs_kts, heading_true, heading_mag, vertical_rate_fpm, timestamp
			FROM track_positions
			WHERE track_id = ?
			ORDER BY timestamp DESC
			LIMIT ?
		)
		ORDER BY timestamp ASC
	`, t.ID, s.maxPositionsInAPI)
	if err != nil {
		return fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := make([]tracking.Position, 0)
	for rows.Next() {
		var p tracking.Position
		var ts string
		if err := rows.Scan(&p.Latitude, &p.Longitude, &p.AltitudeFt, &p.GroundspeedKts,
			&p.HeadingTrue, &p.HeadingMag, &p.VerticalRateFPM, &ts); err != nil {
			return fmt.Errorf("failed to scan position row: %w", err)
		}
		if p.Timestamp, err = parseTime(ts); err != nil {
			return fmt.Errorf("failed to parse position timestamp: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating position rows: %w", err)
	}

	t.Positions = positions
	return nil
}

// insertPositions appends samples newer than the latest stored timestamp.
// The UNIQUE(track_id, timestamp) constraint backs up the merger's own
// duplicate filtering.
func insertPositions(ctx context.Context, tx *sql.Tx, trackID string, positions []tracking.Position) error {
	if len(positions) == 0 {
		return nil
	}

	var latest sql.NullString
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(timestamp) FROM track_positions WHERE track_id = ?`, trackID).Scan(&latest); err != nil {
		return fmt.Errorf("failed to query latest position timestamp: %w", err)
	}

	var latestSeen time.Time
	if latest.Valid {
		ts, err := parseTime(latest.String)
		if err != nil {
			return fmt.Errorf("failed to parse latest position timestamp: %w", err)
		}
		latestSeen = ts
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO track_positions
			(track_id, lat, lon, alt_ft, gs_kts, heading_true, heading_mag, vertical_rate_fpm, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare position insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range positions {
		if latest.Valid && !p.Timestamp.After(latestSeen) {
			continue
		}
		if _, err := stmt.ExecContext(ctx, trackID, p.Latitude, p.Longitude, p.AltitudeFt,
			p.GroundspeedKts, p.HeadingTrue, p.HeadingMag, p.VerticalRateFPM,
			formatTime(p.Timestamp)); err != nil {
			return fmt.Errorf("failed to insert position: %w", err)
		}
	}

	return nil
}

func airportJSON(a *tracking.AirportInfo) interface{} {
	if a == nil {
		return nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil
	}
	return string(b)
}

func parseAirportJSON(s string) *tracking.AirportInfo {
	var a tracking.AirportInfo
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return nil
	}
	return &a
}

func notesJSON(notes []string) interface{} {
	if len(notes) == 0 {
		return nil
	}
	b, err := json.Marshal(notes)
	if err != nil {
		return nil
	}
	return string(b)
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqlTimeFormat)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// isUniqueViolation reports whether the error is a SQLite unique constraint
// failure on the upstream flight binding
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: tracks.upstream_flight_id")
}

// bindingConflict builds the conflict error for a lost binding race, naming
// the track that already owns the upstream flight. Queried through the open
// transaction: the pool holds a single connection.
func bindingConflict(ctx context.Context, tx *sql.Tx, flightID string) error {
	var winnerID string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM tracks WHERE upstream_flight_id = ? AND deleted = 0`, flightID).Scan(&winnerID)
	if err != nil {
		return tracking.ErrFlightAlreadyTracked
	}
	return fmt.Errorf("flight %s is bound to track %s: %w",
		flightID, winnerID, tracking.ErrFlightAlreadyTracked)
}
