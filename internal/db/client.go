package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/atm-rdc/transit-engine/internal/geo"
	"github.com/atm-rdc/transit-engine/internal/types"
)

type Client struct {
	db *sql.DB
}

// New creates a new database client
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// GetActiveOverflights retrieves all open overflight sessions, used to
// rebuild tracker state after a restart.
func (c *Client) GetActiveOverflights() ([]*types.OverflightSession, error) {
	query := `
		SELECT session_id, aircraft_id, callsign, entry_time,
			entry_lat, entry_lon, entry_alt,
			duration_minutes, distance_km
		FROM overflights
		WHERE status = 'open'
	`
	rows, err := c.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*types.OverflightSession
	for rows.Next() {
		var s types.OverflightSession
		if err := rows.Scan(
			&s.SessionID, &s.AircraftID, &s.Callsign, &s.EntryTime,
			&s.EntryLat, &s.EntryLon, &s.EntryAlt,
			&s.DurationMinutes, &s.DistanceKm,
		); err != nil {
			return nil, err
		}
		s.Status = types.SessionOpen
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

// CreateOverflight creates a new open overflight session.
func (c *Client) CreateOverflight(s *types.OverflightSession) error {
	query := `
		INSERT INTO overflights (
			session_id, aircraft_id, callsign, entry_time,
			entry_lat, entry_lon, entry_alt, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := c.db.Exec(query,
		s.SessionID, s.AircraftID, s.Callsign, s.EntryTime,
		s.EntryLat, s.EntryLon, s.EntryAlt, s.Status,
	)
	return err
}

// CloseOverflight records the exit and billing outcome of a session.
func (c *Client) CloseOverflight(s *types.OverflightSession) error {
	query := `
		UPDATE overflights SET
			exit_time = $1, exit_lat = $2, exit_lon = $3, exit_alt = $4,
			status = $5, duration_minutes = $6, distance_km = $7, amount = $8
		WHERE session_id = $9
	`
	var amount sql.NullFloat64
	if s.Amount != nil {
		amount = sql.NullFloat64{Float64: *s.Amount, Valid: true}
	}
	_, err := c.db.Exec(query,
		s.ExitTime, s.ExitLat, s.ExitLon, s.ExitAlt,
		s.Status, s.DurationMinutes, s.DistanceKm, amount,
		s.SessionID,
	)
	return err
}

// GetRecentOverflights retrieves the most recently closed sessions.
func (c *Client) GetRecentOverflights(limit int) ([]*types.OverflightSession, error) {
	query := `
		SELECT session_id, aircraft_id, callsign, entry_time,
			entry_lat, entry_lon, entry_alt,
			exit_time, exit_lat, exit_lon, exit_alt,
			duration_minutes, distance_km, amount
		FROM overflights
		WHERE status = 'closed'
		ORDER BY exit_time DESC
		LIMIT $1
	`
	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*types.OverflightSession
	for rows.Next() {
		var s types.OverflightSession
		var exitTime sql.NullTime
		var exitLat, exitLon, exitAlt, amount sql.NullFloat64
		if err := rows.Scan(
			&s.SessionID, &s.AircraftID, &s.Callsign, &s.EntryTime,
			&s.EntryLat, &s.EntryLon, &s.EntryAlt,
			&exitTime, &exitLat, &exitLon, &exitAlt,
			&s.DurationMinutes, &s.DistanceKm, &amount,
		); err != nil {
			return nil, err
		}
		s.Status = types.SessionClosed
		if exitTime.Valid {
			s.ExitTime = exitTime.Time
		}
		s.ExitLat = exitLat.Float64
		s.ExitLon = exitLon.Float64
		s.ExitAlt = exitAlt.Float64
		if amount.Valid {
			v := amount.Float64
			s.Amount = &v
		}
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

// StoreTrajectoryPoint appends one retained trajectory sample.
func (c *Client) StoreTrajectoryPoint(sessionID string, p types.TrajectoryPoint) error {
	query := `
		INSERT INTO trajectory_samples (time, session_id, latitude, longitude, altitude)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := c.db.Exec(query, p.Timestamp, sessionID, p.Latitude, p.Longitude, p.Altitude)
	return err
}

// GetTrajectory retrieves the retained samples for one session in time
// order.
func (c *Client) GetTrajectory(sessionID string) ([]types.TrajectoryPoint, error) {
	query := `
		SELECT time, latitude, longitude, altitude
		FROM trajectory_samples
		WHERE session_id = $1
		ORDER BY time ASC
	`
	rows, err := c.db.Query(query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []types.TrajectoryPoint
	for rows.Next() {
		var p types.TrajectoryPoint
		if err := rows.Scan(&p.Timestamp, &p.Latitude, &p.Longitude, &p.Altitude); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// CreateParking creates a new open parking session.
func (c *Client) CreateParking(p *types.ParkingSession) error {
	query := `
		INSERT INTO parking_sessions (aircraft_id, callsign, airport_icao, arrived_at, status)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := c.db.Exec(query, p.AircraftID, p.Callsign, p.AirportICAO, p.ArrivedAt, p.Status)
	return err
}

// CloseParking records the departure and final fee of a parking session.
func (c *Client) CloseParking(p *types.ParkingSession) error {
	query := `
		UPDATE parking_sessions SET
			departed_at = $1, status = $2, amount = $3
		WHERE aircraft_id = $4 AND arrived_at = $5
	`
	var amount sql.NullFloat64
	if p.Amount != nil {
		amount = sql.NullFloat64{Float64: *p.Amount, Valid: true}
	}
	_, err := c.db.Exec(query, p.DepartedAt, p.Status, amount, p.AircraftID, p.ArrivedAt)
	return err
}

// GetActiveParkings retrieves all open parking sessions.
func (c *Client) GetActiveParkings() ([]*types.ParkingSession, error) {
	query := `
		SELECT aircraft_id, callsign, airport_icao, arrived_at
		FROM parking_sessions
		WHERE status = 'parked'
	`
	rows, err := c.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*types.ParkingSession
	for rows.Next() {
		var p types.ParkingSession
		if err := rows.Scan(&p.AircraftID, &p.Callsign, &p.AirportICAO, &p.ArrivedAt); err != nil {
			return nil, err
		}
		p.Status = types.ParkingParked
		sessions = append(sessions, &p)
	}
	return sessions, rows.Err()
}

// SaveBoundary stores the active airspace boundary, replacing any previous
// one.
func (c *Client) SaveBoundary(name string, poly geo.Polygon) error {
	rings, err := json.Marshal(poly.Rings)
	if err != nil {
		return fmt.Errorf("failed to marshal boundary rings: %w", err)
	}

	query := `
		INSERT INTO airspaces (name, type, rings, updated_at)
		VALUES ($1, 'boundary', $2, $3)
		ON CONFLICT (type) DO UPDATE SET name = $1, rings = $2, updated_at = $3
	`
	_, err = c.db.Exec(query, name, rings, time.Now().UTC())
	return err
}

// LoadBoundary retrieves the stored airspace boundary, or nil when none has
// been stored yet.
func (c *Client) LoadBoundary() (*geo.Polygon, error) {
	query := `SELECT rings FROM airspaces WHERE type = 'boundary'`

	var data []byte
	err := c.db.QueryRow(query).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rings [][]geo.Point
	if err := json.Unmarshal(data, &rings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal boundary rings: %w", err)
	}
	return &geo.Polygon{Rings: rings}, nil
}

// StoreEngineStats stores engine statistics
func (c *Client) StoreEngineStats(stats map[string]interface{}) error {
	query := `
		INSERT INTO engine_stats (
			time, total_reports, dropped_reports, rejected_reports,
			opened_sessions, closed_sessions, forced_closures, evictions,
			opened_parkings, closed_parkings, skipped_cycles,
			active_aircraft, active_sessions, processing_time_ms
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	processingTime := stats["processing_time"].(time.Duration).Milliseconds()

	_, err := c.db.Exec(query,
		time.Now(),
		stats["total_reports"],
		stats["dropped_reports"],
		stats["rejected_reports"],
		stats["opened_sessions"],
		stats["closed_sessions"],
		stats["forced_closures"],
		stats["evictions"],
		stats["opened_parkings"],
		stats["closed_parkings"],
		stats["skipped_cycles"],
		stats["active_aircraft"],
		stats["active_sessions"],
		processingTime,
	)

	return err
}
