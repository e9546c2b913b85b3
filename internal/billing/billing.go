// Package billing turns session durations and distances into billable
// amounts. Tariffs are injected configuration, never hard-coded into the
// session tracker.
package billing

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/atm-rdc/transit-engine/internal/types"
)

// ErrIncompleteSession is returned when a fee is requested for a session
// missing the timestamps the computation needs. Returning an error instead
// of zero keeps incomplete data from looking like a free transit.
var ErrIncompleteSession = errors.New("session data incomplete")

// Parking tariff defaults.
const (
	DefaultFreeHours   = 1.0
	DefaultRatePerHour = 25.0
)

// ParkingTariff is the parking fee schedule.
type ParkingTariff struct {
	FreeHours   float64
	RatePerHour float64
}

// DefaultParkingTariff returns the standard schedule: first hour free,
// 25 currency units per started hour after that.
func DefaultParkingTariff() ParkingTariff {
	return ParkingTariff{FreeHours: DefaultFreeHours, RatePerHour: DefaultRatePerHour}
}

// ParkingFee computes the fee for time parked between arrival and until.
// It is a pure function of the two instants, so the live estimate for an
// open session and the final amount at close are computed identically. Any
// started hour beyond the free allowance bills as a full hour.
func ParkingFee(arrival, until time.Time, tariff ParkingTariff) (float64, error) {
	if arrival.IsZero() {
		return 0, fmt.Errorf("%w: missing arrival time", ErrIncompleteSession)
	}
	if until.Before(arrival) {
		return 0, fmt.Errorf("%w: departure %s before arrival %s",
			ErrIncompleteSession, until.Format(time.RFC3339), arrival.Format(time.RFC3339))
	}

	elapsedHours := until.Sub(arrival).Hours()
	billable := elapsedHours - tariff.FreeHours
	if billable <= 0 {
		return 0, nil
	}
	return math.Ceil(billable) * tariff.RatePerHour, nil
}

// ParkingSessionFee computes the fee for a parking session, using the
// departure time when set and now for a live estimate otherwise.
func ParkingSessionFee(s *types.ParkingSession, now time.Time, tariff ParkingTariff) (float64, error) {
	if s == nil {
		return 0, fmt.Errorf("%w: nil session", ErrIncompleteSession)
	}
	until := s.DepartedAt
	if until.IsZero() {
		until = now
	}
	return ParkingFee(s.ArrivedAt, until, tariff)
}

// OverflightRateFunc maps a closed overflight session to a billable amount.
// The exact tariff schedule is external configuration.
type OverflightRateFunc func(s *types.OverflightSession) (float64, error)

// DistanceRate returns a rate function billing the trajectory distance at a
// flat per-kilometre rate.
func DistanceRate(perKm float64) OverflightRateFunc {
	return func(s *types.OverflightSession) (float64, error) {
		if s == nil || s.EntryTime.IsZero() {
			return 0, fmt.Errorf("%w: missing entry time", ErrIncompleteSession)
		}
		if s.ExitTime.IsZero() {
			return 0, fmt.Errorf("%w: missing exit time", ErrIncompleteSession)
		}
		return s.DistanceKm * perKm, nil
	}
}

// DurationRate returns a rate function billing elapsed minutes inside the
// boundary at a flat per-minute rate.
func DurationRate(perMinute float64) OverflightRateFunc {
	return func(s *types.OverflightSession) (float64, error) {
		if s == nil || s.EntryTime.IsZero() {
			return 0, fmt.Errorf("%w: missing entry time", ErrIncompleteSession)
		}
		if s.ExitTime.IsZero() {
			return 0, fmt.Errorf("%w: missing exit time", ErrIncompleteSession)
		}
		return s.ExitTime.Sub(s.EntryTime).Minutes() * perMinute, nil
	}
}
