package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/yegors/tailtrack/internal/tracking"
)

func TestPlaneTailNumberLookup(t *testing.T) {
	tracks := testStorage(t)
	s, err := NewPlaneStorage(tracks.GetDB(), tracks.logger)
	if err != nil {
		t.Fatalf("create plane storage: %v", err)
	}
	ctx := context.Background()

	if err := s.Insert(ctx, "plane-1", "c-gabc", "school-1", "C172"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	tail, err := s.TailNumber(ctx, "plane-1")
	if err != nil {
		t.Fatalf("TailNumber: %v", err)
	}
	if tail != "C-GABC" {
		t.Errorf("tail = %q, want C-GABC (uppercased on insert)", tail)
	}

	_, err = s.TailNumber(ctx, "plane-unknown")
	if !errors.Is(err, tracking.ErrPlaneNotFound) {
		t.Fatalf("expected ErrPlaneNotFound, got %v", err)
	}
}
