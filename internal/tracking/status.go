package tracking

import "strings"

// Canonical lifecycle statuses. Upstream status strings that are not mapped
// by the table below pass through verbatim.
const (
	StatusPreparing = "Preparing"
	StatusEnRoute   = "En-Route"
	StatusCompleted = "Completed"
	StatusCancelled = "Cancelled"
)

// Flight-log status vocabulary (owned by the flight-log subsystem; mirrored
// here only for the one-way status propagation).
const (
	LogStatusInFlight  = "In-Flight"
	LogStatusCompleted = "Completed"
	LogStatusCanceled  = "Canceled"
	LogStatusScheduled = "Scheduled"
)

// upstreamStatusTable is the single source of truth for mapping the provider's
// status vocabulary onto canonical statuses. Keys are lowercased and trimmed.
// Do not compare raw status strings anywhere else.
var upstreamStatusTable = map[string]string{
	"en route":               StatusEnRoute,
	"en route / on time":     StatusEnRoute,
	"en route / delayed":     StatusEnRoute,
	"en route / early":       StatusEnRoute,
	"airborne":               StatusEnRoute,
	"in air":                 StatusEnRoute,
	"taxiing / left gate":    StatusEnRoute,
	"arrived":                StatusCompleted,
	"arrived / gate arrival": StatusCompleted,
	"arrived / delayed":      StatusCompleted,
	"landed":                 StatusCompleted,
	"completed":              StatusCompleted,
	"cancelled":              StatusCancelled,
	"canceled":               StatusCancelled,
}

// NormalizeStatus maps a raw upstream status string onto the canonical
// vocabulary. Unmapped strings are returned unchanged (trimmed).
func NormalizeStatus(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return StatusPreparing
	}
	if canonical, ok := upstreamStatusTable[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return trimmed
}

// IsTerminal reports whether a status is terminal: no further automatic
// transitions apply except re-binding to a replacement flight.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// FlightLogStatus maps a track's status onto the flight-log status vocabulary.
func FlightLogStatus(status string) string {
	switch status {
	case StatusPreparing, StatusEnRoute:
		return LogStatusInFlight
	case StatusCompleted:
		return LogStatusCompleted
	case StatusCancelled:
		return LogStatusCanceled
	default:
		return LogStatusScheduled
	}
}
