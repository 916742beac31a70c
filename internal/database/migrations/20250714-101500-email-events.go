package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250714-101500",
		Description: "email delivery events",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS email_events (
				id TEXT PRIMARY KEY,
				email_id TEXT NOT NULL,
				type TEXT NOT NULL,
				recipient TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_email_events_recipient ON email_events(recipient)`,
		},
	})
}
