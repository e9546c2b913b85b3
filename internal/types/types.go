package types

import (
	"time"
)

// FlightStatus is the derived status of a tracked aircraft.
type FlightStatus string

const (
	StatusInFlight    FlightStatus = "in_flight"
	StatusApproaching FlightStatus = "approaching"
	StatusOnGround    FlightStatus = "on_ground"
)

// Session lifecycle states.
const (
	SessionOpen   = "open"
	SessionClosed = "closed"

	ParkingParked   = "parked"
	ParkingDeparted = "departed"
)

// PositionReport is one validated position sample from the external feed.
type PositionReport struct {
	AircraftID   string    `json:"aircraft_id"`
	Callsign     string    `json:"callsign,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Altitude     float64   `json:"altitude"`
	GroundSpeed  float64   `json:"ground_speed"`
	Heading      float64   `json:"heading"`
	VerticalRate float64   `json:"vertical_rate,omitempty"`
	OnGround     bool      `json:"on_ground"`
	Squawk       string    `json:"squawk,omitempty"`
	Source       string    `json:"source,omitempty"`
}

// DeriveStatus computes the flight status from altitude and the on-ground
// flag. Aircraft airborne below 10,000 ft are treated as approaching.
func (r *PositionReport) DeriveStatus() FlightStatus {
	if r.OnGround {
		return StatusOnGround
	}
	if r.Altitude > 0 && r.Altitude < 10000 {
		return StatusApproaching
	}
	return StatusInFlight
}

// TrackState is the latest known state of one observed aircraft. It lives in
// volatile memory only; sessions are decoupled from it and outlive it.
type TrackState struct {
	AircraftID     string       `json:"aircraft_id"`
	Callsign       string       `json:"callsign"`
	Latitude       float64      `json:"latitude"`
	Longitude      float64      `json:"longitude"`
	Altitude       float64      `json:"altitude"`
	GroundSpeed    float64      `json:"ground_speed"`
	Heading        float64      `json:"heading"`
	Squawk         string       `json:"squawk,omitempty"`
	OnGround       bool         `json:"on_ground"`
	Status         FlightStatus `json:"status"`
	InsideBoundary bool         `json:"inside_boundary"`
	LastSeen       time.Time    `json:"last_seen"`
}

// TrajectoryPoint is one retained trajectory sample of an overflight.
type TrajectoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`
}

// OverflightSession is one continuous interval an aircraft spends inside the
// monitored airspace boundary.
type OverflightSession struct {
	SessionID  string `json:"session_id"`
	AircraftID string `json:"aircraft_id"`
	Callsign   string `json:"callsign,omitempty"`

	EntryTime time.Time `json:"entry_time"`
	EntryLat  float64   `json:"entry_lat"`
	EntryLon  float64   `json:"entry_lon"`
	EntryAlt  float64   `json:"entry_alt"`

	ExitTime time.Time `json:"exit_time"`
	ExitLat  float64   `json:"exit_lat"`
	ExitLon  float64   `json:"exit_lon"`
	ExitAlt  float64   `json:"exit_alt"`

	Status          string   `json:"status"`
	DurationMinutes float64  `json:"duration_minutes"`
	DistanceKm      float64  `json:"distance_km"`
	Amount          *float64 `json:"amount,omitempty"`

	Trajectory []TrajectoryPoint `json:"trajectory,omitempty"`
}

// Open reports whether the session has not yet produced an exit.
func (s *OverflightSession) Open() bool {
	return s.Status == SessionOpen
}

// ParkingSession is one continuous interval an aircraft is parked at a
// monitored airport, from confirmed landing to confirmed departure.
type ParkingSession struct {
	AircraftID  string    `json:"aircraft_id"`
	Callsign    string    `json:"callsign,omitempty"`
	AirportICAO string    `json:"airport_icao"`
	ArrivedAt   time.Time `json:"arrived_at"`
	DepartedAt  time.Time `json:"departed_at"`
	Status      string    `json:"status"`
	Amount      *float64  `json:"amount,omitempty"`
}

// Parked reports whether the aircraft has not yet departed.
func (p *ParkingSession) Parked() bool {
	return p.Status == ParkingParked
}
