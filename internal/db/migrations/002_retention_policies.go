package migrations

var RetentionPolicies = &Migration{
	ID:   "002_retention_policies",
	Name: "002_retention_policies",
	UpSQL: `
	-- Keep raw trajectory samples for one year
	SELECT add_retention_policy('trajectory_samples', INTERVAL '365 days');

	-- Keep engine stats for 90 days
	SELECT add_retention_policy('engine_stats', INTERVAL '90 days');

	-- Daily billing rollup over closed sessions
	CREATE MATERIALIZED VIEW IF NOT EXISTS overflight_billing_daily AS
	SELECT
		date_trunc('day', exit_time) AS day,
		COUNT(*) AS session_count,
		SUM(distance_km) AS total_distance_km,
		SUM(duration_minutes) AS total_duration_minutes,
		SUM(amount) AS total_amount
	FROM overflights
	WHERE status = 'closed'
	GROUP BY day
	WITH NO DATA;

	-- Hourly sample volume
	CREATE MATERIALIZED VIEW IF NOT EXISTS trajectory_samples_hourly
	WITH (timescaledb.continuous) AS
	SELECT
		time_bucket('1 hour', time) AS hour,
		COUNT(*) AS sample_count
	FROM trajectory_samples
	GROUP BY hour
	WITH NO DATA;
	`,
	DownSQL: `
	DROP MATERIALIZED VIEW IF EXISTS trajectory_samples_hourly;
	DROP MATERIALIZED VIEW IF EXISTS overflight_billing_daily;
	SELECT remove_retention_policy('trajectory_samples');
	SELECT remove_retention_policy('engine_stats');
	`,
}
