package tracker

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atm-rdc/transit-engine/internal/billing"
	"github.com/atm-rdc/transit-engine/internal/boundary"
	"github.com/atm-rdc/transit-engine/internal/feed"
	"github.com/atm-rdc/transit-engine/internal/geo"
	"github.com/atm-rdc/transit-engine/internal/metrics"
	"github.com/atm-rdc/transit-engine/internal/nats"
	"github.com/atm-rdc/transit-engine/internal/stats"
	"github.com/atm-rdc/transit-engine/internal/types"
)

const sweepInterval = time.Minute

// SessionStore persists sessions and trajectory samples.
type SessionStore interface {
	CreateOverflight(s *types.OverflightSession) error
	CloseOverflight(s *types.OverflightSession) error
	StoreTrajectoryPoint(sessionID string, p types.TrajectoryPoint) error
	GetActiveOverflights() ([]*types.OverflightSession, error)
	CreateParking(p *types.ParkingSession) error
	CloseParking(p *types.ParkingSession) error
	GetActiveParkings() ([]*types.ParkingSession, error)
}

// StateCache mirrors live tracker state into a shared cache so that other
// processes can observe it.
type StateCache interface {
	StoreSession(ctx context.Context, session *types.OverflightSession) error
	DeleteSession(ctx context.Context, aircraftID string) error
	StoreTrackState(ctx context.Context, state *types.TrackState) error
	DeleteTrackState(ctx context.Context, aircraftID string) error
	StoreParking(ctx context.Context, parking *types.ParkingSession) error
	DeleteParking(ctx context.Context, aircraftID string) error
}

// EventPublisher delivers session lifecycle events to downstream consumers.
type EventPublisher interface {
	PublishSessionClosed(event *nats.SessionClosedEvent) error
}

// Config holds the tunable parameters of the tracker.
type Config struct {
	PollInterval time.Duration
	FetchTimeout time.Duration
	IdleTimeout  time.Duration

	TrajectoryStride     int
	TrajectoryMaxSamples int

	Rate   billing.OverflightRateFunc
	Tariff billing.ParkingTariff
}

// entry is the tracked state of one aircraft. Its mutex serializes all
// processing for that aircraft; distinct aircraft proceed in parallel.
type entry struct {
	mu sync.Mutex

	state   types.TrackState
	hasPrev bool

	session *types.OverflightSession
	// boundary captured when the session opened. Boundary replacements do
	// not affect sessions already open.
	poly *geo.Polygon

	// Set under both the table lock and mu when the sweep removes the
	// entry from the table. A holder of a stale pointer must re-resolve.
	evicted bool

	sampleCount int
	stride      int
}

// Tracker turns a stream of position reports into overflight and parking
// sessions.
type Tracker struct {
	cfg      Config
	boundary *boundary.Store
	store    SessionStore
	cache    StateCache
	pub      EventPublisher
	stats    *stats.Stats

	mu       sync.RWMutex
	entries  map[string]*entry
	parkings map[string]*types.ParkingSession
}

// New creates a tracker. The cache and publisher may be nil; persistence to
// the store is mandatory.
func New(cfg Config, b *boundary.Store, store SessionStore, cache StateCache, pub EventPublisher, st *stats.Stats) *Tracker {
	if cfg.TrajectoryStride < 1 {
		cfg.TrajectoryStride = 1
	}
	if cfg.TrajectoryMaxSamples < 2 {
		cfg.TrajectoryMaxSamples = 2
	}
	if cfg.Rate == nil {
		cfg.Rate = billing.DistanceRate(0)
	}
	if st == nil {
		st = stats.New()
	}
	return &Tracker{
		cfg:      cfg,
		boundary: b,
		store:    store,
		cache:    cache,
		pub:      pub,
		stats:    st,
		entries:  make(map[string]*entry),
		parkings: make(map[string]*types.ParkingSession),
	}
}

// Stats returns the tracker's statistics.
func (t *Tracker) Stats() *stats.Stats {
	return t.stats
}

// Recover rebuilds in-memory state from sessions that were open when the
// engine last stopped.
func (t *Tracker) Recover(ctx context.Context) error {
	sessions, err := t.store.GetActiveOverflights()
	if err != nil {
		return fmt.Errorf("failed to load open sessions: %w", err)
	}

	poly := t.boundary.Active()

	t.mu.Lock()
	for _, s := range sessions {
		// Resume from the last persisted fix, not the recovery instant,
		// so reports a lagging feed delivers after a restart are not
		// treated as stale.
		lastSeen := s.EntryTime
		lat, lon, alt := s.EntryLat, s.EntryLon, s.EntryAlt
		if n := len(s.Trajectory); n > 0 {
			lastSeen = s.Trajectory[n-1].Timestamp
			lat = s.Trajectory[n-1].Latitude
			lon = s.Trajectory[n-1].Longitude
			alt = s.Trajectory[n-1].Altitude
		}
		e := &entry{
			state: types.TrackState{
				AircraftID:     s.AircraftID,
				Callsign:       s.Callsign,
				Latitude:       lat,
				Longitude:      lon,
				Altitude:       alt,
				InsideBoundary: true,
				Status:         types.StatusInFlight,
				LastSeen:       lastSeen,
			},
			hasPrev: true,
			session: s,
			poly:    poly,
			stride:  t.cfg.TrajectoryStride,
		}
		t.entries[s.AircraftID] = e
	}
	t.mu.Unlock()

	parkings, err := t.store.GetActiveParkings()
	if err != nil {
		return fmt.Errorf("failed to load open parkings: %w", err)
	}
	t.mu.Lock()
	for _, p := range parkings {
		t.parkings[p.AircraftID] = p
	}
	t.mu.Unlock()

	if len(sessions) > 0 || len(parkings) > 0 {
		log.Printf("Recovered %d open sessions and %d open parkings", len(sessions), len(parkings))
	}
	return nil
}

// Run polls the source on a fixed interval and processes each batch, and
// sweeps idle aircraft, until ctx is done.
func (t *Tracker) Run(ctx context.Context, src feed.Source) error {
	poll := time.NewTicker(t.cfg.PollInterval)
	defer poll.Stop()
	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C:
			fetchCtx, cancel := context.WithTimeout(ctx, t.cfg.FetchTimeout)
			reports, err := src.Fetch(fetchCtx)
			cancel()
			if err != nil {
				t.stats.IncrementSkippedCycles()
				metrics.CyclesSkippedTotal.Inc()
				log.Printf("Warning: skipping cycle, fetch failed: %v", err)
				continue
			}
			t.ProcessBatch(ctx, reports)
		case <-sweep.C:
			t.evictIdle(ctx, time.Now().UTC())
		}
	}
}

// ProcessBatch processes one polling cycle's worth of reports. Reports are
// grouped per aircraft and each group is applied in timestamp order; groups
// of distinct aircraft are processed concurrently.
func (t *Tracker) ProcessBatch(ctx context.Context, reports []types.PositionReport) {
	if len(reports) == 0 {
		return
	}
	start := time.Now()

	groups := make(map[string][]types.PositionReport)
	for _, r := range reports {
		groups[r.AircraftID] = append(groups[r.AircraftID], r)
	}

	ids := make(chan string, len(groups))
	for id := range groups {
		ids <- id
	}
	close(ids)

	workers := runtime.GOMAXPROCS(0)
	if workers > len(groups) {
		workers = len(groups)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				group := groups[id]
				sort.SliceStable(group, func(a, b int) bool {
					return group[a].Timestamp.Before(group[b].Timestamp)
				})
				for i := range group {
					t.processReport(ctx, &group[i])
				}
			}
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)
	t.stats.AddProcessingTime(elapsed)
	metrics.CycleDurationMs.Observe(float64(elapsed.Milliseconds()))
	t.updateGauges()
}

func (t *Tracker) entryFor(aircraftID string) *entry {
	t.mu.RLock()
	e, ok := t.entries[aircraftID]
	t.mu.RUnlock()
	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok = t.entries[aircraftID]; ok {
		return e
	}
	e = &entry{stride: t.cfg.TrajectoryStride}
	t.entries[aircraftID] = e
	return e
}

// lockEntry resolves and locks the live entry for an aircraft. An entry the
// idle sweep removed between resolution and locking is discarded and the
// lookup retried.
func (t *Tracker) lockEntry(aircraftID string) *entry {
	for {
		e := t.entryFor(aircraftID)
		e.mu.Lock()
		if !e.evicted {
			return e
		}
		e.mu.Unlock()
	}
}

func (t *Tracker) processReport(ctx context.Context, r *types.PositionReport) {
	e := t.lockEntry(r.AircraftID)
	defer e.mu.Unlock()

	t.stats.IncrementTotalReports()
	t.stats.UpdateLastReportTime()
	metrics.ReportsTotal.Inc()

	// Reports at or before the last applied timestamp are stale.
	if e.hasPrev && !r.Timestamp.After(e.state.LastSeen) {
		t.stats.IncrementDroppedReports()
		metrics.ReportsDroppedTotal.Inc()
		return
	}

	curr := geo.Point{Lat: r.Latitude, Lon: r.Longitude}
	prev := geo.Point{Lat: e.state.Latitude, Lon: e.state.Longitude}

	// Sessions keep the boundary they opened against.
	poly := e.poly
	if e.session == nil {
		poly = t.boundary.Active()
	}

	inside := poly != nil && poly.Contains(curr)

	switch {
	case e.session == nil && inside:
		t.openSession(ctx, e, r)
	case e.session != nil && inside:
		t.sampleTrajectory(e, r)
	case e.session != nil && !inside:
		exit := prev
		if !e.hasPrev || !e.state.InsideBoundary {
			// No usable last-inside point, attribute the exit to the
			// entry position.
			exit = geo.Point{Lat: e.session.EntryLat, Lon: e.session.EntryLon}
		}
		t.closeSession(ctx, e, exit, e.state.Altitude, r.Timestamp, false)
	}

	e.state = types.TrackState{
		AircraftID:     r.AircraftID,
		Callsign:       r.Callsign,
		Latitude:       r.Latitude,
		Longitude:      r.Longitude,
		Altitude:       r.Altitude,
		GroundSpeed:    r.GroundSpeed,
		Heading:        r.Heading,
		Squawk:         r.Squawk,
		OnGround:       r.OnGround,
		Status:         r.DeriveStatus(),
		InsideBoundary: inside,
		LastSeen:       r.Timestamp,
	}
	e.hasPrev = true

	if t.cache != nil {
		if err := t.cache.StoreTrackState(ctx, &e.state); err != nil {
			log.Printf("Warning: failed to cache track state for %s: %v", r.AircraftID, err)
		}
	}
}

// newSessionID builds an overflight session identifier from the entry date
// and a random suffix.
func newSessionID(entry time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("OVF-%s-%s", entry.UTC().Format("20060102"), suffix)
}

func (t *Tracker) openSession(ctx context.Context, e *entry, r *types.PositionReport) {
	s := &types.OverflightSession{
		SessionID:  newSessionID(r.Timestamp),
		AircraftID: r.AircraftID,
		Callsign:   r.Callsign,
		EntryTime:  r.Timestamp,
		EntryLat:   r.Latitude,
		EntryLon:   r.Longitude,
		EntryAlt:   r.Altitude,
		Status:     types.SessionOpen,
		Trajectory: []types.TrajectoryPoint{{
			Timestamp: r.Timestamp,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			Altitude:  r.Altitude,
		}},
	}

	if err := t.store.CreateOverflight(s); err != nil {
		log.Printf("Warning: failed to persist session %s: %v", s.SessionID, err)
	}
	if t.cache != nil {
		if err := t.cache.StoreSession(ctx, s); err != nil {
			log.Printf("Warning: failed to cache session %s: %v", s.SessionID, err)
		}
	}

	e.session = s
	e.poly = t.boundary.Active()
	e.sampleCount = 1
	e.stride = t.cfg.TrajectoryStride

	t.stats.IncrementOpenedSessions()
	metrics.SessionsOpenedTotal.Inc()
	log.Printf("Opened session %s for %s at (%.4f, %.4f)", s.SessionID, r.AircraftID, r.Latitude, r.Longitude)
}

// sampleTrajectory retains every Nth report while inside the boundary. When
// the retained set reaches the cap it is thinned to every other sample and
// the stride doubles.
func (t *Tracker) sampleTrajectory(e *entry, r *types.PositionReport) {
	e.sampleCount++
	if (e.sampleCount-1)%e.stride != 0 {
		return
	}

	s := e.session
	s.Trajectory = append(s.Trajectory, types.TrajectoryPoint{
		Timestamp: r.Timestamp,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Altitude:  r.Altitude,
	})

	if len(s.Trajectory) >= t.cfg.TrajectoryMaxSamples {
		kept := make([]types.TrajectoryPoint, 0, len(s.Trajectory)/2+1)
		for i := 0; i < len(s.Trajectory); i += 2 {
			kept = append(kept, s.Trajectory[i])
		}
		s.Trajectory = kept
		e.stride *= 2
	}
}

func (t *Tracker) closeSession(ctx context.Context, e *entry, exit geo.Point, exitAlt float64, exitTime time.Time, forced bool) {
	s := e.session

	last := types.TrajectoryPoint{
		Timestamp: exitTime,
		Latitude:  exit.Lat,
		Longitude: exit.Lon,
		Altitude:  exitAlt,
	}
	n := len(s.Trajectory)
	if n == 0 || !s.Trajectory[n-1].Timestamp.Equal(last.Timestamp) ||
		s.Trajectory[n-1].Latitude != last.Latitude || s.Trajectory[n-1].Longitude != last.Longitude {
		s.Trajectory = append(s.Trajectory, last)
	}

	s.ExitTime = exitTime
	s.ExitLat = exit.Lat
	s.ExitLon = exit.Lon
	s.ExitAlt = exitAlt
	s.Status = types.SessionClosed
	s.DurationMinutes = exitTime.Sub(s.EntryTime).Minutes()
	s.DistanceKm = trajectoryDistance(s.Trajectory)

	amount, err := t.cfg.Rate(s)
	if err != nil {
		log.Printf("Warning: could not bill session %s: %v", s.SessionID, err)
	} else {
		s.Amount = &amount
	}

	if err := t.store.CloseOverflight(s); err != nil {
		log.Printf("Warning: failed to persist close of session %s: %v", s.SessionID, err)
	}
	for _, p := range s.Trajectory {
		if err := t.store.StoreTrajectoryPoint(s.SessionID, p); err != nil {
			log.Printf("Warning: failed to persist trajectory sample for %s: %v", s.SessionID, err)
			break
		}
	}
	if t.cache != nil {
		if err := t.cache.DeleteSession(ctx, s.AircraftID); err != nil {
			log.Printf("Warning: failed to evict cached session %s: %v", s.SessionID, err)
		}
	}
	if t.pub != nil {
		event := &nats.SessionClosedEvent{
			Session:  s,
			Amount:   s.Amount,
			ClosedAt: exitTime,
			Forced:   forced,
		}
		if err := t.pub.PublishSessionClosed(event); err != nil {
			log.Printf("Warning: failed to publish close of session %s: %v", s.SessionID, err)
		}
	}

	e.session = nil
	e.poly = nil
	e.sampleCount = 0
	e.stride = t.cfg.TrajectoryStride

	t.stats.IncrementClosedSessions()
	kind := "exit"
	if forced {
		t.stats.IncrementForcedClosures()
		kind = "forced"
	}
	metrics.SessionsClosedTotal.WithLabelValues(kind).Inc()
	log.Printf("Closed session %s for %s: %.1f min, %.1f km", s.SessionID, s.AircraftID, s.DurationMinutes, s.DistanceKm)
}

func trajectoryDistance(points []types.TrajectoryPoint) float64 {
	pts := make([]geo.Point, len(points))
	for i, p := range points {
		pts[i] = geo.Point{Lat: p.Latitude, Lon: p.Longitude}
	}
	return geo.TrajectoryDistanceKm(pts)
}

// evictIdle drops aircraft not heard from within the idle timeout. An open
// session is force-closed at the last known position.
func (t *Tracker) evictIdle(ctx context.Context, now time.Time) {
	t.mu.RLock()
	stale := make([]string, 0)
	for id, e := range t.entries {
		e.mu.Lock()
		idle := e.hasPrev && now.Sub(e.state.LastSeen) > t.cfg.IdleTimeout
		e.mu.Unlock()
		if idle {
			stale = append(stale, id)
		}
	}
	t.mu.RUnlock()

	swept := 0
	for _, id := range stale {
		// Close, flag and delete under both locks. A report racing the
		// sweep either lands first (cancelling the eviction on the
		// re-check) or sees the evicted flag and starts a fresh entry.
		t.mu.Lock()
		e, ok := t.entries[id]
		if !ok {
			t.mu.Unlock()
			continue
		}
		e.mu.Lock()
		if !e.hasPrev || now.Sub(e.state.LastSeen) <= t.cfg.IdleTimeout {
			e.mu.Unlock()
			t.mu.Unlock()
			continue
		}
		if e.session != nil {
			last := geo.Point{Lat: e.state.Latitude, Lon: e.state.Longitude}
			log.Printf("Force-closing session %s for idle aircraft %s", e.session.SessionID, id)
			t.closeSession(ctx, e, last, e.state.Altitude, e.state.LastSeen, true)
		}
		e.evicted = true
		delete(t.entries, id)
		e.mu.Unlock()
		t.mu.Unlock()

		if t.cache != nil {
			if err := t.cache.DeleteTrackState(ctx, id); err != nil {
				log.Printf("Warning: failed to evict cached track state for %s: %v", id, err)
			}
		}
		t.stats.IncrementEvictions()
		swept++
	}

	if swept > 0 {
		t.updateGauges()
	}
}

func (t *Tracker) updateGauges() {
	t.mu.RLock()
	aircraft := uint64(len(t.entries))
	var open uint64
	for _, e := range t.entries {
		e.mu.Lock()
		if e.session != nil {
			open++
		}
		e.mu.Unlock()
	}
	t.mu.RUnlock()

	t.stats.SetActiveAircraft(aircraft)
	t.stats.SetActiveSessions(open)
	metrics.ActiveAircraft.Set(float64(aircraft))
	metrics.ActiveSessions.Set(float64(open))
}

// ConfirmLanding records a confirmed landing at an airport. Any open
// overflight session is closed at the last known position, and a parking
// session opens.
func (t *Tracker) ConfirmLanding(ctx context.Context, aircraftID, airportICAO string, at time.Time) (*types.ParkingSession, error) {
	p := &types.ParkingSession{
		AircraftID:  aircraftID,
		AirportICAO: airportICAO,
		ArrivedAt:   at,
		Status:      types.ParkingParked,
	}

	// Check and reserve in one critical section so concurrent landing
	// confirmations for the same aircraft cannot both pass the check.
	t.mu.Lock()
	if _, exists := t.parkings[aircraftID]; exists {
		t.mu.Unlock()
		return nil, fmt.Errorf("aircraft %s is already parked", aircraftID)
	}
	t.parkings[aircraftID] = p
	t.mu.Unlock()

	e := t.lockEntry(aircraftID)
	callsign := e.state.Callsign
	if e.session != nil {
		last := geo.Point{Lat: e.state.Latitude, Lon: e.state.Longitude}
		t.closeSession(ctx, e, last, e.state.Altitude, at, false)
	}
	e.mu.Unlock()

	t.mu.Lock()
	p.Callsign = callsign
	t.mu.Unlock()

	if err := t.store.CreateParking(p); err != nil {
		t.mu.Lock()
		if t.parkings[aircraftID] == p {
			delete(t.parkings, aircraftID)
		}
		t.mu.Unlock()
		return nil, fmt.Errorf("failed to persist parking for %s: %w", aircraftID, err)
	}
	if t.cache != nil {
		if err := t.cache.StoreParking(ctx, p); err != nil {
			log.Printf("Warning: failed to cache parking for %s: %v", aircraftID, err)
		}
	}

	t.stats.IncrementOpenedParkings()
	log.Printf("Aircraft %s parked at %s", aircraftID, airportICAO)
	return p, nil
}

// ConfirmDeparture records a confirmed departure, closing the parking
// session and computing its final fee.
func (t *Tracker) ConfirmDeparture(ctx context.Context, aircraftID string, at time.Time) (*types.ParkingSession, error) {
	t.mu.Lock()
	p, ok := t.parkings[aircraftID]
	if ok {
		delete(t.parkings, aircraftID)
	}
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no open parking session for %s", aircraftID)
	}

	p.DepartedAt = at
	p.Status = types.ParkingDeparted
	fee, err := billing.ParkingSessionFee(p, at, t.cfg.Tariff)
	if err != nil {
		return nil, fmt.Errorf("failed to bill parking for %s: %w", aircraftID, err)
	}
	p.Amount = &fee

	if err := t.store.CloseParking(p); err != nil {
		return nil, fmt.Errorf("failed to persist departure of %s: %w", aircraftID, err)
	}
	if t.cache != nil {
		if err := t.cache.DeleteParking(ctx, aircraftID); err != nil {
			log.Printf("Warning: failed to evict cached parking for %s: %v", aircraftID, err)
		}
	}

	t.stats.IncrementClosedParkings()
	log.Printf("Aircraft %s departed %s, fee %.2f", aircraftID, p.AirportICAO, fee)
	return p, nil
}

// ActiveSessions returns a snapshot of all open overflight sessions.
func (t *Tracker) ActiveSessions() []*types.OverflightSession {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var sessions []*types.OverflightSession
	for _, e := range t.entries {
		e.mu.Lock()
		if e.session != nil {
			copied := *e.session
			copied.Trajectory = append([]types.TrajectoryPoint(nil), e.session.Trajectory...)
			sessions = append(sessions, &copied)
		}
		e.mu.Unlock()
	}
	return sessions
}

// ActiveParkings returns a snapshot of all open parking sessions.
func (t *Tracker) ActiveParkings() []*types.ParkingSession {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var parkings []*types.ParkingSession
	for _, p := range t.parkings {
		copied := *p
		parkings = append(parkings, &copied)
	}
	return parkings
}

// TrackStates returns a snapshot of the latest state of every tracked
// aircraft.
func (t *Tracker) TrackStates() []types.TrackState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	states := make([]types.TrackState, 0, len(t.entries))
	for _, e := range t.entries {
		e.mu.Lock()
		if e.hasPrev {
			states = append(states, e.state)
		}
		e.mu.Unlock()
	}
	return states
}
