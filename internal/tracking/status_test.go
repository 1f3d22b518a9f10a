package tracking

import "testing"

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty defaults to preparing", "", StatusPreparing},
		{"whitespace only", "   ", StatusPreparing},
		{"en route", "En Route", StatusEnRoute},
		{"en route on time", "En Route / On Time", StatusEnRoute},
		{"en route delayed", "en route / delayed", StatusEnRoute},
		{"airborne", "Airborne", StatusEnRoute},
		{"arrived", "Arrived", StatusCompleted},
		{"gate arrival", "Arrived / Gate Arrival", StatusCompleted},
		{"landed", "LANDED", StatusCompleted},
		{"cancelled", "Cancelled", StatusCancelled},
		{"canceled us spelling", "canceled", StatusCancelled},
		{"unmapped passes through", "Scheduled / Delayed", "Scheduled / Delayed"},
		{"unmapped is trimmed", "  Diverted  ", "Diverted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeStatus(tt.raw); got != tt.want {
				t.Errorf("NormalizeStatus(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusCompleted, true},
		{StatusCancelled, true},
		{StatusPreparing, false},
		{StatusEnRoute, false},
		{"Taxiing", false},
	}

	for _, tt := range tests {
		if got := IsTerminal(tt.status); got != tt.want {
			t.Errorf("IsTerminal(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestFlightLogStatus(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{StatusPreparing, LogStatusInFlight},
		{StatusEnRoute, LogStatusInFlight},
		{StatusCompleted, LogStatusCompleted},
		{StatusCancelled, LogStatusCanceled},
		{"Diverted", LogStatusScheduled},
		{"", LogStatusScheduled},
	}

	for _, tt := range tests {
		if got := FlightLogStatus(tt.status); got != tt.want {
			t.Errorf("FlightLogStatus(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
