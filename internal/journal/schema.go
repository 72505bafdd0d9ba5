package journal

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version string
	sql     string
}

// migrations are applied in order, each inside its own transaction.
var migrations = []migration{
	{
		version: "001",
		sql: `
			CREATE TABLE alarm_events (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				patient_id INTEGER NOT NULL,
				parameter_id INTEGER NOT NULL,
				alarm BOOLEAN NOT NULL,
				recorded_at DATETIME NOT NULL
			);
			CREATE INDEX idx_alarm_events_patient_time ON alarm_events(patient_id, recorded_at);
		`,
	},
	{
		version: "002",
		sql: `
			CREATE TABLE relay_events (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				principal TEXT NOT NULL,
				patient_id INTEGER NOT NULL,
				recorded_at DATETIME NOT NULL
			);
			CREATE INDEX idx_relay_events_principal ON relay_events(principal);
		`,
	},
}

var requiredTables = []string{"schema_migrations", "alarm_events", "relay_events"}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.version, err)
		}
	}
	return nil
}

func appliedVersions(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	versions := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions[v] = true
	}
	return versions, rows.Err()
}

func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(m.sql); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
		return err
	}
	return tx.Commit()
}

func validateSchema(db *sql.DB) error {
	for _, table := range requiredTables {
		var count int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
		if count == 0 {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}
