package store

// runMigrations executes all database migrations in order.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Face detection and recognition events
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			event_type TEXT NOT NULL CHECK(event_type IN ('detection', 'recognition')),
			name TEXT NOT NULL,
			person_id TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL DEFAULT 0,
			recognized INTEGER NOT NULL DEFAULT 0,
			loc_top INTEGER NOT NULL DEFAULT 0,
			loc_right INTEGER NOT NULL DEFAULT 0,
			loc_bottom INTEGER NOT NULL DEFAULT 0,
			loc_left INTEGER NOT NULL DEFAULT 0
		)`,

		// Gift payments, successful or not
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			currency TEXT NOT NULL CHECK(currency IN ('SUI', 'XRPL')),
			amount REAL NOT NULL,
			digest TEXT NOT NULL DEFAULT '',
			recipient_address TEXT NOT NULL DEFAULT '',
			recipient_email TEXT NOT NULL DEFAULT '',
			sender_name TEXT NOT NULL DEFAULT '',
			explorer_url TEXT NOT NULL DEFAULT '',
			person_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL CHECK(status IN ('success', 'failed')),
			error TEXT NOT NULL DEFAULT ''
		)`,

		// Key-value settings
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_events_name ON events(name)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
