package migrations

// InitialSchema creates the initial database schema
var InitialSchema = &Migration{
	ID:   "001_initial_schema",
	Name: "001_initial_schema",
	UpSQL: `
		-- Enable TimescaleDB extension
		CREATE EXTENSION IF NOT EXISTS timescaledb;

		-- Retained trajectory samples, one row per kept position
		CREATE TABLE IF NOT EXISTS trajectory_samples (
			time TIMESTAMPTZ NOT NULL,
			session_id TEXT NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			altitude DOUBLE PRECISION
		);

		SELECT create_hypertable('trajectory_samples', 'time');

		CREATE INDEX IF NOT EXISTS idx_trajectory_samples_session
			ON trajectory_samples (session_id, time);

		-- Overflight transit sessions
		CREATE TABLE IF NOT EXISTS overflights (
			session_id TEXT PRIMARY KEY,
			aircraft_id TEXT NOT NULL,
			callsign TEXT,
			entry_time TIMESTAMPTZ NOT NULL,
			entry_lat DOUBLE PRECISION NOT NULL,
			entry_lon DOUBLE PRECISION NOT NULL,
			entry_alt DOUBLE PRECISION,
			exit_time TIMESTAMPTZ,
			exit_lat DOUBLE PRECISION,
			exit_lon DOUBLE PRECISION,
			exit_alt DOUBLE PRECISION,
			status TEXT NOT NULL DEFAULT 'open',
			duration_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
			distance_km DOUBLE PRECISION NOT NULL DEFAULT 0,
			amount DOUBLE PRECISION
		);

		CREATE INDEX IF NOT EXISTS idx_overflights_aircraft ON overflights (aircraft_id);
		CREATE INDEX IF NOT EXISTS idx_overflights_status ON overflights (status);
		CREATE INDEX IF NOT EXISTS idx_overflights_exit_time ON overflights (exit_time DESC);

		-- Parking sessions at airports
		CREATE TABLE IF NOT EXISTS parking_sessions (
			id SERIAL PRIMARY KEY,
			aircraft_id TEXT NOT NULL,
			callsign TEXT,
			airport_icao TEXT NOT NULL,
			arrived_at TIMESTAMPTZ NOT NULL,
			departed_at TIMESTAMPTZ,
			status TEXT NOT NULL DEFAULT 'parked',
			amount DOUBLE PRECISION,
			UNIQUE (aircraft_id, arrived_at)
		);

		CREATE INDEX IF NOT EXISTS idx_parking_sessions_status ON parking_sessions (status);
		CREATE INDEX IF NOT EXISTS idx_parking_sessions_airport ON parking_sessions (airport_icao);

		-- Airspace boundary geometry, one active boundary per type
		CREATE TABLE IF NOT EXISTS airspaces (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL UNIQUE,
			rings JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		-- Engine statistics samples
		CREATE TABLE IF NOT EXISTS engine_stats (
			time TIMESTAMPTZ NOT NULL,
			total_reports BIGINT NOT NULL,
			dropped_reports BIGINT NOT NULL,
			rejected_reports BIGINT NOT NULL,
			opened_sessions BIGINT NOT NULL,
			closed_sessions BIGINT NOT NULL,
			forced_closures BIGINT NOT NULL,
			evictions BIGINT NOT NULL,
			opened_parkings BIGINT NOT NULL,
			closed_parkings BIGINT NOT NULL,
			skipped_cycles BIGINT NOT NULL,
			active_aircraft BIGINT NOT NULL,
			active_sessions BIGINT NOT NULL,
			processing_time_ms BIGINT NOT NULL
		);

		SELECT create_hypertable('engine_stats', 'time');

		CREATE INDEX IF NOT EXISTS idx_engine_stats_time ON engine_stats (time DESC);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS engine_stats;
		DROP TABLE IF EXISTS airspaces;
		DROP TABLE IF EXISTS parking_sessions;
		DROP TABLE IF EXISTS overflights;
		DROP TABLE IF EXISTS trajectory_samples;
	`,
}
