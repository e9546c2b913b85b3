package parser

import (
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/atm-rdc/transit-engine/internal/types"
)

func TestParseReport_Valid(t *testing.T) {
	data := []byte(`{
		"aircraft_id": "9Q-CLM",
		"callsign": "CGA241",
		"timestamp": "2024-03-01T08:00:00Z",
		"latitude": -4.3,
		"longitude": 15.3,
		"altitude": 35000,
		"ground_speed": 450,
		"heading": 92,
		"on_ground": false,
		"squawk": "2000"
	}`)

	report, err := ParseReport(data)
	if err != nil {
		t.Fatalf("ParseReport failed: %v", err)
	}
	if report.AircraftID != "9Q-CLM" {
		t.Errorf("AircraftID = %q, want 9Q-CLM", report.AircraftID)
	}
	if report.Callsign != "CGA241" {
		t.Errorf("Callsign = %q, want CGA241", report.Callsign)
	}
	want := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	if !report.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", report.Timestamp, want)
	}
}

func TestParseReport_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: `MSG,3,1,1,ABC123`},
		{name: "missing aircraft id", data: `{"timestamp":"2024-03-01T08:00:00Z","latitude":0,"longitude":0}`},
		{name: "missing timestamp", data: `{"aircraft_id":"X","latitude":0,"longitude":0}`},
		{name: "latitude out of range", data: `{"aircraft_id":"X","timestamp":"2024-03-01T08:00:00Z","latitude":91,"longitude":0}`},
		{name: "longitude out of range", data: `{"aircraft_id":"X","timestamp":"2024-03-01T08:00:00Z","latitude":0,"longitude":-181}`},
		{name: "negative speed", data: `{"aircraft_id":"X","timestamp":"2024-03-01T08:00:00Z","latitude":0,"longitude":0,"ground_speed":-10}`},
		{name: "wrong field type", data: `{"aircraft_id":"X","timestamp":"2024-03-01T08:00:00Z","latitude":"four","longitude":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseReport([]byte(tt.data)); err == nil {
				t.Error("expected rejection, got nil error")
			}
		})
	}
}

func TestValidate_RejectsNaN(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.PositionReport)
	}{
		{name: "latitude", mutate: func(r *types.PositionReport) { r.Latitude = math.NaN() }},
		{name: "longitude", mutate: func(r *types.PositionReport) { r.Longitude = math.NaN() }},
		{name: "altitude", mutate: func(r *types.PositionReport) { r.Altitude = math.NaN() }},
		{name: "ground speed", mutate: func(r *types.PositionReport) { r.GroundSpeed = math.NaN() }},
		{name: "heading", mutate: func(r *types.PositionReport) { r.Heading = math.NaN() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := types.PositionReport{
				AircraftID: "9Q-CLM",
				Timestamp:  time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
				Latitude:   -4.3,
				Longitude:  15.3,
				Altitude:   35000,
			}
			tt.mutate(&r)
			if err := validate(&r); err == nil {
				t.Errorf("expected NaN %s to be rejected", tt.name)
			}
		})
	}
}

func TestParseReport_HeadingNormalized(t *testing.T) {
	tests := []struct {
		heading  float64
		expected float64
	}{
		{heading: 0, expected: 0},
		{heading: 360, expected: 0},
		{heading: 450, expected: 90},
		{heading: -10, expected: 350},
	}

	for _, tt := range tests {
		data := []byte(`{"aircraft_id":"X","timestamp":"2024-03-01T08:00:00Z","latitude":0,"longitude":0,"heading":` +
			strconv.FormatFloat(tt.heading, 'f', -1, 64) + `}`)
		report, err := ParseReport(data)
		if err != nil {
			t.Fatalf("ParseReport failed: %v", err)
		}
		if report.Heading != tt.expected {
			t.Errorf("heading %v normalized to %v, want %v", tt.heading, report.Heading, tt.expected)
		}
	}
}

func TestParseBatch(t *testing.T) {
	data := []byte(`[
		{"aircraft_id":"A","timestamp":"2024-03-01T08:00:00Z","latitude":-4.3,"longitude":15.3},
		{"aircraft_id":"","timestamp":"2024-03-01T08:00:00Z","latitude":0,"longitude":0},
		{"aircraft_id":"B","timestamp":"2024-03-01T08:00:10Z","latitude":-2.5,"longitude":23.6}
	]`)

	reports, rejected, err := ParseBatch(data)
	if err != nil {
		t.Fatalf("ParseBatch failed: %v", err)
	}
	if len(reports) != 2 {
		t.Errorf("got %d reports, want 2", len(reports))
	}
	if rejected != 1 {
		t.Errorf("rejected = %d, want 1", rejected)
	}
}

func TestParseBatch_NotAnArray(t *testing.T) {
	if _, _, err := ParseBatch([]byte(`{"aircraft_id":"A"}`)); err == nil {
		t.Error("expected error for non-array payload")
	}
}
