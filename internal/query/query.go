// Package query exposes the read-only HTTP surface of the engine on its own
// ServeMux so the main entrypoint can mount it under a prefix.
package query

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/atm-rdc/transit-engine/internal/billing"
	"github.com/atm-rdc/transit-engine/internal/geo"
	"github.com/atm-rdc/transit-engine/internal/metrics"
	"github.com/atm-rdc/transit-engine/internal/stats"
	"github.com/atm-rdc/transit-engine/internal/types"
)

const defaultRecentLimit = 50

// Engine is the live tracker state the API serves.
type Engine interface {
	ActiveSessions() []*types.OverflightSession
	ActiveParkings() []*types.ParkingSession
	TrackStates() []types.TrackState
	ConfirmLanding(ctx context.Context, aircraftID, airportICAO string, at time.Time) (*types.ParkingSession, error)
	ConfirmDeparture(ctx context.Context, aircraftID string, at time.Time) (*types.ParkingSession, error)
}

// History is the persisted session record the API serves.
type History interface {
	GetRecentOverflights(limit int) ([]*types.OverflightSession, error)
	GetTrajectory(sessionID string) ([]types.TrajectoryPoint, error)
}

type parkingView struct {
	*types.ParkingSession
	LiveAmount float64 `json:"live_amount"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// instrument wraps a handler with the per-route request metrics.
func instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.RequestsTotal.WithLabelValues(route).Inc()
		h(w, r)
		metrics.RequestDurationMs.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	}
}

// trajectoryDistance sums the leg distances of a trajectory in kilometres.
func trajectoryDistance(points []types.TrajectoryPoint) float64 {
	pts := make([]geo.Point, len(points))
	for i, p := range points {
		pts[i] = geo.Point{Lat: p.Latitude, Lon: p.Longitude}
	}
	return geo.TrajectoryDistanceKm(pts)
}

// BuildRoutes builds the API routes on a dedicated ServeMux.
func BuildRoutes(engine Engine, history History, tariff billing.ParkingTariff, rate billing.OverflightRateFunc, st *stats.Stats) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /overflights/active", instrument("overflights_active", func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC()
		sessions := engine.ActiveSessions()
		if sessions == nil {
			sessions = []*types.OverflightSession{}
		}
		// Open sessions carry a live elapsed duration, distance flown so
		// far and, when the tariff can price the partial transit, a live
		// amount estimate.
		for _, s := range sessions {
			s.DurationMinutes = now.Sub(s.EntryTime).Minutes()
			s.DistanceKm = trajectoryDistance(s.Trajectory)
			if rate == nil {
				continue
			}
			est := *s
			est.ExitTime = now
			if amount, err := rate(&est); err == nil {
				s.Amount = &amount
			}
		}
		writeJSON(w, http.StatusOK, sessions)
	}))

	mux.HandleFunc("GET /overflights", instrument("overflights_recent", func(w http.ResponseWriter, r *http.Request) {
		limit := defaultRecentLimit
		if q := r.URL.Query().Get("limit"); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil || n < 1 || n > 500 {
				writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
				return
			}
			limit = n
		}
		sessions, err := history.GetRecentOverflights(limit)
		if err != nil {
			log.Printf("Warning: failed to load recent overflights: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to load sessions")
			return
		}
		if sessions == nil {
			sessions = []*types.OverflightSession{}
		}
		writeJSON(w, http.StatusOK, sessions)
	}))

	mux.HandleFunc("GET /overflights/{id}/trajectory", instrument("overflight_trajectory", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		// An open session serves its in-memory trajectory; closed ones
		// come from the persisted samples.
		for _, s := range engine.ActiveSessions() {
			if s.SessionID == id {
				writeJSON(w, http.StatusOK, s.Trajectory)
				return
			}
		}
		points, err := history.GetTrajectory(id)
		if err != nil {
			log.Printf("Warning: failed to load trajectory %s: %v", id, err)
			writeError(w, http.StatusInternalServerError, "failed to load trajectory")
			return
		}
		if len(points) == 0 {
			writeError(w, http.StatusNotFound, "unknown session")
			return
		}
		writeJSON(w, http.StatusOK, points)
	}))

	mux.HandleFunc("GET /aircraft", instrument("aircraft", func(w http.ResponseWriter, r *http.Request) {
		states := engine.TrackStates()
		if states == nil {
			states = []types.TrackState{}
		}
		writeJSON(w, http.StatusOK, states)
	}))

	mux.HandleFunc("GET /parking/active", instrument("parking_active", func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC()
		parkings := engine.ActiveParkings()
		views := make([]parkingView, 0, len(parkings))
		for _, p := range parkings {
			fee, err := billing.ParkingSessionFee(p, now, tariff)
			if err != nil {
				log.Printf("Warning: failed to estimate parking fee for %s: %v", p.AircraftID, err)
			}
			views = append(views, parkingView{ParkingSession: p, LiveAmount: fee})
		}
		writeJSON(w, http.StatusOK, views)
	}))

	mux.HandleFunc("POST /parking/landing", instrument("parking_landing", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AircraftID  string    `json:"aircraft_id"`
			AirportICAO string    `json:"airport_icao"`
			At          time.Time `json:"at"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AircraftID == "" || req.AirportICAO == "" {
			writeError(w, http.StatusBadRequest, "aircraft_id and airport_icao are required")
			return
		}
		if req.At.IsZero() {
			req.At = time.Now().UTC()
		}
		p, err := engine.ConfirmLanding(r.Context(), req.AircraftID, req.AirportICAO, req.At)
		if err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}))

	mux.HandleFunc("POST /parking/departure", instrument("parking_departure", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AircraftID string    `json:"aircraft_id"`
			At         time.Time `json:"at"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AircraftID == "" {
			writeError(w, http.StatusBadRequest, "aircraft_id is required")
			return
		}
		if req.At.IsZero() {
			req.At = time.Now().UTC()
		}
		p, err := engine.ConfirmDeparture(r.Context(), req.AircraftID, req.At)
		if err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, p)
	}))

	mux.HandleFunc("GET /stats", instrument("stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, st.Snapshot())
	}))

	return mux
}
