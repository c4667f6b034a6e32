package store

import "fmt"

// migrations are applied in order; the schema version is the number of
// migrations applied, kept in PRAGMA user_version.
var migrations = []string{
	// 1: one row per capture session
	`CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		card_type INTEGER NOT NULL DEFAULT -1,
		status TEXT NOT NULL DEFAULT 'running' CHECK(status IN ('running', 'success', 'aborted')),
		message TEXT NOT NULL DEFAULT '',
		candidates INTEGER NOT NULL DEFAULT 0,
		all_passed INTEGER NOT NULL DEFAULT 0,
		hologram_passed INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		finished_at DATETIME
	)`,

	// 2: OCR completion events; the newest one is the sticky result
	`CREATE TABLE IF NOT EXISTS ocr_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_id TEXT NOT NULL REFERENCES attempts(id) ON DELETE CASCADE,
		completed INTEGER NOT NULL DEFAULT 1,
		card_type INTEGER NOT NULL DEFAULT -1,
		response TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	// 3
	`CREATE INDEX IF NOT EXISTS idx_attempts_started_at ON attempts(started_at)`,

	// 4
	`CREATE INDEX IF NOT EXISTS idx_ocr_events_attempt_id ON ocr_events(attempt_id)`,
}

// SchemaVersion is the schema version after all migrations ran.
var SchemaVersion = len(migrations)

// runMigrations applies the migrations newer than the database's version.
func (s *Store) runMigrations() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("schema version %d is newer than supported %d", version, len(migrations))
	}

	for i := version; i < len(migrations); i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}

	return nil
}
