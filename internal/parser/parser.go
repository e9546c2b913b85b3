// Package parser validates raw feed payloads at the ingestion boundary.
// Only reports that parse into the closed PositionReport shape are let
// through; everything else is rejected per-report without aborting the
// batch.
package parser

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/atm-rdc/transit-engine/internal/types"
)

// ParseBatch decodes a JSON array of position reports. Malformed individual
// reports are dropped and counted; a payload that is not a JSON array at all
// is an error.
func ParseBatch(data []byte) ([]types.PositionReport, int, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("invalid batch payload: %w", err)
	}

	reports := make([]types.PositionReport, 0, len(raw))
	rejected := 0
	for _, item := range raw {
		report, err := ParseReport(item)
		if err != nil {
			rejected++
			continue
		}
		reports = append(reports, report)
	}
	return reports, rejected, nil
}

// ParseReport decodes and validates a single position report.
func ParseReport(data []byte) (types.PositionReport, error) {
	var r types.PositionReport
	if err := json.Unmarshal(data, &r); err != nil {
		return types.PositionReport{}, fmt.Errorf("invalid report: %w", err)
	}
	if err := validate(&r); err != nil {
		return types.PositionReport{}, err
	}
	return r, nil
}

func validate(r *types.PositionReport) error {
	if r.AircraftID == "" {
		return fmt.Errorf("report missing aircraft id")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("report %s missing timestamp", r.AircraftID)
	}
	if math.IsNaN(r.Latitude) || r.Latitude < -90 || r.Latitude > 90 {
		return fmt.Errorf("report %s has latitude %v out of range", r.AircraftID, r.Latitude)
	}
	if math.IsNaN(r.Longitude) || r.Longitude < -180 || r.Longitude > 180 {
		return fmt.Errorf("report %s has longitude %v out of range", r.AircraftID, r.Longitude)
	}
	if math.IsNaN(r.Altitude) {
		return fmt.Errorf("report %s has non-numeric altitude", r.AircraftID)
	}
	if math.IsNaN(r.GroundSpeed) || r.GroundSpeed < 0 {
		return fmt.Errorf("report %s has ground speed %v out of range", r.AircraftID, r.GroundSpeed)
	}
	if math.IsNaN(r.Heading) {
		return fmt.Errorf("report %s has non-numeric heading", r.AircraftID)
	}
	r.Heading = normalizeHeading(r.Heading)
	return nil
}

func normalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}
