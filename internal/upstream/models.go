package upstream

import (
	"time"
)

// FlightRecord represents a single flight entry returned by the provider
// for a tail number query. Any of the timestamp fields may be absent.
type FlightRecord struct {
	FlightID        string     `json:"flight_id"`    // Provider-specific unique flight identifier
	Ident           string     `json:"ident"`        // Callsign or registration used for the flight
	Registration    string     `json:"registration"` // Tail number
	Status          string     `json:"status"`       // Raw provider status string (free text)
	FlightType      string     `json:"flight_type"`  // e.g. "General_Aviation", "Airline"
	Route           string     `json:"route"`        // Filed route string
	FiledDistanceNM *float64   `json:"filed_distance_nm,omitempty"`
	OriginCode      string     `json:"origin_code"`
	DestinationCode string     `json:"destination_code"`
	ScheduledOut    *time.Time `json:"scheduled_out,omitempty"`
	EstimatedOut    *time.Time `json:"estimated_out,omitempty"`
	ActualOut       *time.Time `json:"actual_out,omitempty"`
	ScheduledIn     *time.Time `json:"scheduled_in,omitempty"`
	EstimatedIn     *time.Time `json:"estimated_in,omitempty"`
	ActualIn        *time.Time `json:"actual_in,omitempty"`
}

// Landed reports whether the provider recorded an actual arrival for this flight.
func (f *FlightRecord) Landed() bool {
	return f.ActualIn != nil
}

// BestDeparture returns the best-known departure time using the
// actual > estimated > scheduled precedence, or nil if none is known.
func (f *FlightRecord) BestDeparture() *time.Time {
	if f.ActualOut != nil {
		return f.ActualOut
	}
	if f.EstimatedOut != nil {
		return f.EstimatedOut
	}
	return f.ScheduledOut
}

// PositionSample represents one timestamped telemetry point on a flight track
type PositionSample struct {
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	AltitudeFt      float64   `json:"altitude_ft"`
	GroundspeedKts  float64   `json:"groundspeed_kts"`
	HeadingTrue     float64   `json:"heading_true"`
	VerticalRateFPM float64   `json:"vertical_rate_fpm"`
	Timestamp       time.Time `json:"timestamp"`
}

// PositionBatch is the provider response for a flight's position history.
// FlownDistanceNM, when present, is the cumulative distance flown so far as
// computed by the provider.
type PositionBatch struct {
	Positions       []PositionSample `json:"positions"`
	FlownDistanceNM *float64         `json:"flown_distance_nm,omitempty"`
}

// AirportDetail represents airport metadata returned by the provider
type AirportDetail struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	City      string  `json:"city"`
	State     string  `json:"state"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// flightsEnvelope is the wire envelope for the flights-by-tail-number endpoint
type flightsEnvelope struct {
	Flights []FlightRecord `json:"flights"`
}
