package tracking

import (
	"errors"
	"time"
)

// Sentinel errors shared between the service and its storage implementations.
var (
	// ErrInvalidInput indicates a request rejected before any I/O was performed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTrackNotFound indicates an unknown track id.
	ErrTrackNotFound = errors.New("track not found")
	// ErrPlaneNotFound indicates an unknown plane id during tail number resolution.
	ErrPlaneNotFound = errors.New("plane not found")
	// ErrFlightAlreadyTracked indicates the selected upstream flight is already
	// bound to a different track.
	ErrFlightAlreadyTracked = errors.New("upstream flight already tracked")
	// ErrStaleTrack indicates a concurrent writer persisted the track first.
	ErrStaleTrack = errors.New("track was modified concurrently")
	// ErrNoUpstreamData indicates the provider returned no flights for a tail number.
	ErrNoUpstreamData = errors.New("no upstream flight data")
)

// AirportInfo describes one end of a tracked route. Enriched lazily and
// best-effort; absence of detail never blocks a pass.
type AirportInfo struct {
	Code      string  `json:"code"`
	Name      string  `json:"name,omitempty"`
	City      string  `json:"city,omitempty"`
	State     string  `json:"state,omitempty"`
	Country   string  `json:"country,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// Position represents one stored telemetry sample of a tracked flight
type Position struct {
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	AltitudeFt      float64   `json:"altitude_ft"`
	GroundspeedKts  float64   `json:"groundspeed_kts"`
	HeadingTrue     float64   `json:"heading_true"`
	HeadingMag      float64   `json:"heading_mag"`
	VerticalRateFPM float64   `json:"vertical_rate_fpm"`
	Timestamp       time.Time `json:"timestamp"`
}

// Track represents one tracking session for one aircraft tail number.
//
// Positions are ordered by timestamp ascending and are append-only; the merger
// never re-appends a sample at or before the latest stored timestamp. Notes
// are an append-only audit trail of system-generated annotations.
type Track struct {
	ID               string `json:"id"`
	UpstreamFlightID string `json:"upstream_flight_id,omitempty"` // empty while preparing
	TailNumber       string `json:"tail_number"`

	SchoolID     string `json:"school_id,omitempty"`
	PlaneID      string `json:"plane_id,omitempty"`
	InstructorID string `json:"instructor_id,omitempty"`
	StudentID    string `json:"student_id,omitempty"`

	Status string `json:"status"`

	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	ScheduledDeparture *time.Time `json:"scheduled_departure,omitempty"`
	EstimatedDeparture *time.Time `json:"estimated_departure,omitempty"`
	ActualDeparture    *time.Time `json:"actual_departure,omitempty"`
	ScheduledArrival   *time.Time `json:"scheduled_arrival,omitempty"`
	EstimatedArrival   *time.Time `json:"estimated_arrival,omitempty"`
	ActualArrival      *time.Time `json:"actual_arrival,omitempty"`

	OriginCode      string       `json:"origin_code,omitempty"`
	DestinationCode string       `json:"destination_code,omitempty"`
	Origin          *AirportInfo `json:"origin,omitempty"`
	Destination     *AirportInfo `json:"destination,omitempty"`

	Route       string  `json:"route,omitempty"`
	FlightType  string  `json:"flight_type,omitempty"`
	DistanceNM  float64 `json:"distance_nm,omitempty"`
	DurationMin int     `json:"duration_min,omitempty"`

	PollIntervalSecs int `json:"poll_interval_secs,omitempty"` // advisory only

	Notes     []string   `json:"notes,omitempty"`
	Positions []Position `json:"positions,omitempty"`

	// Version is the optimistic-concurrency token checked by the store on save.
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Bound reports whether the track is reconciling against an upstream flight.
func (t *Track) Bound() bool {
	return t.UpstreamFlightID != ""
}

// Terminal reports whether the track reached a terminal lifecycle status.
func (t *Track) Terminal() bool {
	return IsTerminal(t.Status)
}

// LastActivity returns the staleness reference for the inactivity guard:
// the latest stored sample timestamp when samples exist, otherwise the time
// of the last persisted update.
func (t *Track) LastActivity() time.Time {
	if n := len(t.Positions); n > 0 {
		return t.Positions[n-1].Timestamp
	}
	return t.UpdatedAt
}

// AppendNote appends a system-generated annotation to the audit trail
func (t *Track) AppendNote(note string) {
	t.Notes = append(t.Notes, note)
}

// Clone returns a deep copy of the track. The reconciler mutates only copies,
// so a failed pass leaves the caller's value untouched.
func (t *Track) Clone() *Track {
	c := *t
	c.Notes = append([]string(nil), t.Notes...)
	c.Positions = append([]Position(nil), t.Positions...)
	c.ScheduledDeparture = cloneTime(t.ScheduledDeparture)
	c.EstimatedDeparture = cloneTime(t.EstimatedDeparture)
	c.ActualDeparture = cloneTime(t.ActualDeparture)
	c.ScheduledArrival = cloneTime(t.ScheduledArrival)
	c.EstimatedArrival = cloneTime(t.EstimatedArrival)
	c.ActualArrival = cloneTime(t.ActualArrival)
	c.EndTime = cloneTime(t.EndTime)
	if t.Origin != nil {
		o := *t.Origin
		c.Origin = &o
	}
	if t.Destination != nil {
		d := *t.Destination
		c.Destination = &d
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// TrackFilter describes the filter parameters for a bulk listing
type TrackFilter struct {
	TailNumber   string
	SchoolID     string
	PlaneID      string
	InstructorID string
	StudentID    string
	Status       string
	From         *time.Time // start_time lower bound
	To           *time.Time // start_time upper bound
	Search       string     // free-text match on tail number, route, airport codes and notes
	Page         int
	PageSize     int
}

// TrackPage is one page of a filtered track listing
type TrackPage struct {
	Tracks   []*Track `json:"tracks"`
	Total    int      `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}
