// Package boundary owns the active airspace boundary polygon. The boundary
// is replaced wholesale on edit; readers get immutable snapshots, so a
// session opened against one boundary keeps evaluating against it until it
// closes even if the active boundary changes mid-session.
package boundary

import (
	"sync"

	"github.com/atm-rdc/transit-engine/internal/geo"
)

// Store holds the currently active boundary.
type Store struct {
	mu     sync.RWMutex
	active *geo.Polygon
}

// New creates an empty boundary store.
func New() *Store {
	return &Store{}
}

// Active returns the current boundary snapshot, or nil when none is set.
// The returned polygon must not be mutated.
func (s *Store) Active() *geo.Polygon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetActive validates and installs a new boundary. On validation failure the
// existing boundary is left untouched and the error wraps
// geo.ErrInvalidGeometry.
func (s *Store) SetActive(poly geo.Polygon) error {
	if err := geo.Validate(poly); err != nil {
		return err
	}

	snapshot := clone(poly)
	s.mu.Lock()
	s.active = snapshot
	s.mu.Unlock()
	return nil
}

func clone(poly geo.Polygon) *geo.Polygon {
	rings := make([][]geo.Point, len(poly.Rings))
	for i, ring := range poly.Rings {
		rings[i] = append([]geo.Point(nil), ring...)
	}
	return &geo.Polygon{Rings: rings}
}

// Default returns the built-in RDC airspace boundary, used until an edited
// boundary has been stored.
func Default() geo.Polygon {
	coords := [][2]float64{
		{12.2, -5.9}, {12.5, -4.6}, {13.1, -4.5}, {14.0, -4.4},
		{15.8, -4.0}, {16.2, -2.0}, {16.5, -1.0}, {17.8, -0.5},
		{18.5, 2.0}, {19.5, 3.0}, {21.0, 4.0}, {24.0, 5.5},
		{27.4, 5.0}, {28.0, 4.5}, {29.0, 4.3}, {29.5, 3.0},
		{29.8, 1.5}, {29.6, -1.0}, {29.2, -1.5}, {29.0, -2.8},
		{29.5, -4.5}, {29.0, -6.0}, {30.5, -8.0}, {30.0, -10.0},
		{28.5, -11.0}, {27.5, -12.0}, {25.0, -12.5}, {22.0, -13.0},
		{21.5, -12.0}, {20.0, -11.0}, {18.0, -9.5}, {16.0, -8.0},
		{13.0, -6.5},
	}

	ring := make([]geo.Point, len(coords))
	for i, c := range coords {
		ring[i] = geo.Point{Lon: c[0], Lat: c[1]}
	}
	return geo.Polygon{Rings: [][]geo.Point{ring}}
}
