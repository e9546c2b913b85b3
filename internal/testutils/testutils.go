package testutils

import (
	"context"
	"fmt"
	"time"

	"github.com/atm-rdc/transit-engine/internal/types"
)

// MockReport creates a position report for testing
func MockReport(id string, ts time.Time, lat, lon float64) types.PositionReport {
	return types.PositionReport{
		AircraftID:  id,
		Callsign:    "TEST101",
		Timestamp:   ts,
		Latitude:    lat,
		Longitude:   lon,
		Altitude:    32000,
		GroundSpeed: 420,
		Heading:     90,
		Source:      "test-source",
	}
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}
