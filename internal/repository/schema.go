package repository

// tableDefinitions are executed in order against a fresh database. They are
// idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) so
// InitializeSchema can run on every process start.
var tableDefinitions = []string{
	`CREATE TABLE IF NOT EXISTS deliveries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		campaign_id TEXT NOT NULL,
		email TEXT NOT NULL,
		template_id TEXT NOT NULL,
		subject TEXT NOT NULL,
		provider_message_id TEXT,
		status TEXT NOT NULL,
		attempt_no INTEGER NOT NULL,
		http_status INTEGER,
		error_kind TEXT,
		error_detail TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_deliveries_campaign_id ON deliveries (campaign_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_deliveries_provider_message_id ON deliveries (provider_message_id) WHERE provider_message_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_deliveries_email ON deliveries (email)`,

	`CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider TEXT NOT NULL,
		event_type TEXT NOT NULL,
		provider_message_id TEXT NOT NULL,
		recipient TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		signature_valid INTEGER NOT NULL,
		received_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_provider_message_id ON events (provider_message_id)`,

	`CREATE TABLE IF NOT EXISTS suppressions (
		email TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		detail TEXT,
		created_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS daily_quota (
		date TEXT PRIMARY KEY,
		used INTEGER NOT NULL
	)`,
}
