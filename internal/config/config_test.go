package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", cfg.PollInterval, DefaultPollInterval)
	}
	if cfg.IdleTimeout != DefaultIdleTimeout {
		t.Errorf("IdleTimeout = %v, want %v", cfg.IdleTimeout, DefaultIdleTimeout)
	}
	if cfg.TrajectoryStride != DefaultTrajectoryStride {
		t.Errorf("TrajectoryStride = %d, want %d", cfg.TrajectoryStride, DefaultTrajectoryStride)
	}
	if cfg.ParkingFreeHours != DefaultParkingFreeHours {
		t.Errorf("ParkingFreeHours = %v, want %v", cfg.ParkingFreeHours, DefaultParkingFreeHours)
	}
	if cfg.ParkingRatePerHour != DefaultParkingRatePerHour {
		t.Errorf("ParkingRatePerHour = %v, want %v", cfg.ParkingRatePerHour, DefaultParkingRatePerHour)
	}
	if cfg.NATSURL == "" || cfg.DBConnStr == "" || cfg.RedisAddr == "" {
		t.Error("connection defaults should not be empty")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("IDLE_TIMEOUT", "1m")
	t.Setenv("TRAJECTORY_STRIDE", "3")
	t.Setenv("PARKING_RATE_PER_HOUR", "40")
	t.Setenv("SOURCES", "feed1:30003, feed2:30003")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.PollInterval)
	}
	if cfg.IdleTimeout != time.Minute {
		t.Errorf("IdleTimeout = %v, want 1m", cfg.IdleTimeout)
	}
	if cfg.TrajectoryStride != 3 {
		t.Errorf("TrajectoryStride = %d, want 3", cfg.TrajectoryStride)
	}
	if cfg.ParkingRatePerHour != 40 {
		t.Errorf("ParkingRatePerHour = %v, want 40", cfg.ParkingRatePerHour)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[1] != "feed2:30003" {
		t.Errorf("Sources = %v, want two trimmed entries", cfg.Sources)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad duration", key: "POLL_INTERVAL", value: "soon"},
		{name: "bad int", key: "TRAJECTORY_STRIDE", value: "five"},
		{name: "bad float", key: "PARKING_RATE_PER_HOUR", value: "cheap"},
		{name: "stride below one", key: "TRAJECTORY_STRIDE", value: "0"},
		{name: "max samples too small", key: "TRAJECTORY_MAX_SAMPLES", value: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load should fail with %s=%s", tt.key, tt.value)
			}
		})
	}
}
