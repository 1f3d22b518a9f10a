package tracking

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yegors/tailtrack/internal/config"
	"github.com/yegors/tailtrack/internal/physics"
	"github.com/yegors/tailtrack/internal/upstream"
	"github.com/yegors/tailtrack/pkg/logger"
)

// Gateway defines the upstream flight-data provider operations this service
// consumes. Empty results are "no data", not errors.
type Gateway interface {
	Flights(ctx context.Context, tailNumber string) ([]upstream.FlightRecord, error)
	Positions(ctx context.Context, flightID string) (*upstream.PositionBatch, error)
	Airport(ctx context.Context, code string) (*upstream.AirportDetail, error)
}

// Store defines the interface for track persistence
type Store interface {
	Create(ctx context.Context, t *Track) error
	Get(ctx context.Context, id string) (*Track, error)
	// Update persists the track, checking its version to serialize concurrent
	// writers. resetPositions replaces the stored history instead of appending.
	Update(ctx context.Context, t *Track, resetPositions bool) error
	List(ctx context.Context, filter TrackFilter) (*TrackPage, error)
	// FindByUpstreamFlightID returns the non-deleted track bound to the given
	// upstream flight id, or nil when none exists.
	FindByUpstreamFlightID(ctx context.Context, flightID string) (*Track, error)
}

// PlaneDirectory resolves tail numbers from plane references owned by the
// rest of the flight-school backend.
type PlaneDirectory interface {
	TailNumber(ctx context.Context, planeID string) (string, error)
}

// Correlator propagates track status into the flight-log subsystem.
// Strictly advisory: implementations log misses and failures, never block.
type Correlator interface {
	Propagate(ctx context.Context, t *Track)
}

// Broadcaster pushes refreshed tracks to connected clients
type Broadcaster interface {
	BroadcastTrackUpdate(t *Track)
}

// StartRequest is the payload for opening a new tracking session
type StartRequest struct {
	TailNumber       string     `json:"tail_number,omitempty"`
	PlaneID          string     `json:"plane_id,omitempty"`
	SchoolID         string     `json:"school_id"`
	InstructorID     string     `json:"instructor_id,omitempty"`
	StudentID        string     `json:"student_id,omitempty"`
	StartTime        *time.Time `json:"start_time,omitempty"`
	PollIntervalSecs int        `json:"poll_interval_secs,omitempty"` // advisory hint, not enforced
}

type airportCacheEntry struct {
	detail  *upstream.AirportDetail
	fetched time.Time
}

// Service orchestrates tracking sessions: session start, single update
// passes, and bulk listings with refresh. Passes run synchronously within the
// request that triggered them; there is no standing background worker.
type Service struct {
	store       Store
	gateway     Gateway
	planes      PlaneDirectory
	correlator  Correlator
	broadcaster Broadcaster
	cfg         config.TrackingConfig
	logger      *logger.Logger
	now         func() time.Time

	airportMu    sync.RWMutex
	airportCache map[string]airportCacheEntry
}

// NewService creates a new tracking service
func NewService(
	store Store,
	gateway Gateway,
	planes PlaneDirectory,
	correlator Correlator,
	broadcaster Broadcaster,
	cfg config.TrackingConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		store:        store,
		gateway:      gateway,
		planes:       planes,
		correlator:   correlator,
		broadcaster:  broadcaster,
		cfg:          cfg,
		logger:       log.Named("tracking"),
		now:          time.Now,
		airportCache: make(map[string]airportCacheEntry),
	}
}

func (s *Service) thresholds() Thresholds {
	return Thresholds{
		InactivityTimeout: time.Duration(s.cfg.InactivityTimeoutMinutes) * time.Minute,
	}
}

// Start validates the request, resolves the tail number, selects an upstream
// flight and creates the tracking session. With no selectable flight the
// session starts unbound in Preparing; with no upstream data at all no track
// is created and ErrNoUpstreamData is returned.
func (s *Service) Start(ctx context.Context, req StartRequest) (*Track, error) {
	if strings.TrimSpace(req.TailNumber) == "" && strings.TrimSpace(req.PlaneID) == "" {
		return nil, fmt.Errorf("%w: tail_number or plane_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.SchoolID) == "" {
		return nil, fmt.Errorf("%w: school_id is required", ErrInvalidInput)
	}

	tail := strings.ToUpper(strings.TrimSpace(req.TailNumber))
	if tail == "" {
		resolved, err := s.planes.TailNumber(ctx, req.PlaneID)
		if err != nil {
			return nil, fmt.Errorf("resolve tail number for plane %s: %w", req.PlaneID, err)
		}
		tail = strings.ToUpper(strings.TrimSpace(resolved))
	}

	flights, err := s.gateway.Flights(ctx, tail)
	if err != nil {
		return nil, fmt.Errorf("fetch flights for %s: %w", tail, err)
	}

	now := s.now()
	sel, err := SelectFlight(flights, now)
	if err != nil {
		return nil, err
	}

	start := now
	if req.StartTime != nil {
		start = *req.StartTime
	}

	t := &Track{
		ID:               uuid.NewString(),
		TailNumber:       tail,
		SchoolID:         req.SchoolID,
		PlaneID:          req.PlaneID,
		InstructorID:     req.InstructorID,
		StudentID:        req.StudentID,
		Status:           StatusPreparing,
		StartTime:        start,
		PollIntervalSecs: req.PollIntervalSecs,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if t.PollIntervalSecs == 0 {
		t.PollIntervalSecs = s.cfg.DefaultPollIntervalSecs
	}

	if !sel.Placeholder {
		// Advisory duplicate check; the store's unique constraint is the
		// authoritative guard at commit time.
		if err := s.checkBinding(ctx, sel.Flight.FlightID, t.ID); err != nil {
			return nil, err
		}
		bindFlight(t, sel.Flight)
	}

	if err := s.store.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create track: %w", err)
	}

	s.logger.Info("Tracking session started",
		logger.String("track_id", t.ID),
		logger.String("tail_number", t.TailNumber),
		logger.String("upstream_flight_id", t.UpstreamFlightID),
		logger.String("status", t.Status),
	)

	if t.Bound() {
		// One merge pass right away. A transient positions failure does not
		// undo a session that was just created.
		batch, err := s.gateway.Positions(ctx, t.UpstreamFlightID)
		if err != nil {
			s.logger.Warn("Initial position fetch failed",
				logger.String("track_id", t.ID), logger.Error(err))
		} else {
			ApplyPositionBatch(t, batch)
			s.enrich(ctx, t)
			if err := s.store.Update(ctx, t, false); err != nil {
				s.logger.Warn("Failed to persist initial merge pass",
					logger.String("track_id", t.ID), logger.Error(err))
			}
		}
	}

	if s.correlator != nil {
		s.correlator.Propagate(ctx, t)
	}
	s.broadcast(t)

	return t, nil
}

// Get returns a track as stored, without touching the upstream provider.
func (s *Service) Get(ctx context.Context, id string) (*Track, error) {
	return s.store.Get(ctx, id)
}

// Update loads one track and runs a full reconciliation pass over it.
func (s *Service) Update(ctx context.Context, id string) (*Track, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.runPass(ctx, t)
}

// List returns one page of tracks matching the filter. When refresh is set,
// every non-terminal track on the page gets a reconciliation pass first;
// passes run in parallel across tracks and a failure on one track never
// aborts its siblings.
func (s *Service) List(ctx context.Context, filter TrackFilter, refresh bool) (*TrackPage, error) {
	page, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}

	if !refresh {
		return page, nil
	}

	sem := make(chan struct{}, s.cfg.BulkRefreshParallelism)
	var wg sync.WaitGroup

	for i, t := range page.Tracks {
		if t.Terminal() {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, t *Track) {
			defer wg.Done()
			defer func() { <-sem }()

			refreshed, err := s.runPass(ctx, t)
			if err != nil {
				// Isolate per item: log and keep the stale copy.
				s.logger.Warn("Bulk refresh pass failed",
					logger.String("track_id", t.ID),
					logger.String("tail_number", t.TailNumber),
					logger.Error(err))
				return
			}
			page.Tracks[i] = refreshed
		}(i, t)
	}
	wg.Wait()

	return page, nil
}

// runPass executes one reconciliation pass: fetch what the state machine
// needs, reconcile, re-check the binding, persist, correlate, broadcast.
// Any upstream fetch failure aborts the pass with the track unmodified.
func (s *Service) runPass(ctx context.Context, t *Track) (*Track, error) {
	snap, err := s.buildSnapshot(ctx, t)
	if err != nil {
		return nil, err
	}

	out := Reconcile(t, snap, s.now(), s.thresholds())
	if out.NoData {
		s.logger.Debug("No upstream data for track, staying in Preparing",
			logger.String("track_id", t.ID),
			logger.String("tail_number", t.TailNumber))
	}
	if !out.Changed {
		return t, nil
	}

	if out.Rebound {
		if err := s.checkBinding(ctx, out.Track.UpstreamFlightID, t.ID); err != nil {
			return nil, err
		}
	}

	s.enrich(ctx, out.Track)

	if err := s.store.Update(ctx, out.Track, out.Rebound); err != nil {
		return nil, fmt.Errorf("persist track %s: %w", t.ID, err)
	}

	if s.correlator != nil {
		s.correlator.Propagate(ctx, out.Track)
	}
	s.broadcast(out.Track)

	return out.Track, nil
}

// buildSnapshot fetches the upstream data the track's current state requires.
func (s *Service) buildSnapshot(ctx context.Context, t *Track) (Snapshot, error) {
	var snap Snapshot

	candidates, err := s.gateway.Flights(ctx, t.TailNumber)
	if err != nil {
		return snap, fmt.Errorf("fetch flights for %s: %w", t.TailNumber, err)
	}
	snap.Candidates = candidates

	if !t.Bound() {
		return snap, nil
	}

	for i := range candidates {
		if candidates[i].FlightID == t.UpstreamFlightID {
			snap.Flight = &candidates[i]
			break
		}
	}

	// Positions are only needed while the binding is still active.
	active := !t.Terminal() && t.ActualArrival == nil && (snap.Flight == nil || !snap.Flight.Landed())
	if active {
		batch, err := s.gateway.Positions(ctx, t.UpstreamFlightID)
		if err != nil {
			return snap, fmt.Errorf("fetch positions for flight %s: %w", t.UpstreamFlightID, err)
		}
		snap.Positions = batch
	}

	return snap, nil
}

// checkBinding rejects a binding when another track already owns the upstream
// flight id. Advisory only; the store's partial unique index is authoritative.
func (s *Service) checkBinding(ctx context.Context, flightID, trackID string) error {
	existing, err := s.store.FindByUpstreamFlightID(ctx, flightID)
	if err != nil {
		return fmt.Errorf("check binding for flight %s: %w", flightID, err)
	}
	if existing != nil && existing.ID != trackID {
		return fmt.Errorf("flight %s is bound to track %s: %w",
			flightID, existing.ID, ErrFlightAlreadyTracked)
	}
	return nil
}

// enrich fills in airport details and a route-distance fallback, best-effort.
// Failures leave the corresponding fields unset and never fail the pass.
func (s *Service) enrich(ctx context.Context, t *Track) {
	if t.Origin == nil && t.OriginCode != "" {
		t.Origin = s.airportInfo(ctx, t.OriginCode)
	}
	if t.Destination == nil && t.DestinationCode != "" {
		t.Destination = s.airportInfo(ctx, t.DestinationCode)
	}

	// Great-circle fallback when the provider reported no distance.
	if t.DistanceNM == 0 && t.Origin != nil && t.Destination != nil {
		t.DistanceNM = physics.DistanceNM(
			t.Origin.Latitude, t.Origin.Longitude,
			t.Destination.Latitude, t.Destination.Longitude)
	}
}

// airportInfo resolves airport metadata through an in-memory cache.
func (s *Service) airportInfo(ctx context.Context, code string) *AirportInfo {
	s.airportMu.RLock()
	entry, ok := s.airportCache[code]
	s.airportMu.RUnlock()

	expiry := time.Duration(s.cfg.AirportCacheExpiryMins) * time.Minute
	if !ok || s.now().Sub(entry.fetched) > expiry {
		detail, err := s.gateway.Airport(ctx, code)
		if err != nil {
			s.logger.Debug("Airport lookup failed",
				logger.String("code", code), logger.Error(err))
			return nil
		}
		entry = airportCacheEntry{detail: detail, fetched: s.now()}
		s.airportMu.Lock()
		s.airportCache[code] = entry
		s.airportMu.Unlock()
	}

	d := entry.detail
	return &AirportInfo{
		Code:      d.Code,
		Name:      d.Name,
		City:      d.City,
		State:     d.State,
		Country:   d.Country,
		Latitude:  d.Latitude,
		Longitude: d.Longitude,
	}
}

func (s *Service) broadcast(t *Track) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastTrackUpdate(t)
	}
}
