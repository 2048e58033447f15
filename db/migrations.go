package db

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
)

// ErrSchemaTooNew is returned when the database was migrated by a newer build
// than this one. Chats and credits are left untouched.
var ErrSchemaTooNew = errors.New("database schema is newer than this build")

// Migration is one step of the chat store schema. Up runs in the same
// transaction that records the version, so a step is applied whole or not at all.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is filled by the init functions of the migration_*.go files
var migrations []Migration

// RegisterMigration adds a migration to the list
func RegisterMigration(m Migration) {
	migrations = append(migrations, m)
}

// runMigrations brings the chat store up to the latest registered version
func runMigrations(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL,
			description TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	slices.SortFunc(migrations, func(a, b Migration) int { return a.Version - b.Version })

	current, err := schemaVersion(conn)
	if err != nil {
		return err
	}
	if n := len(migrations); n > 0 && current > migrations[n-1].Version {
		return fmt.Errorf("%w: database at version %d, build knows %d", ErrSchemaTooNew, current, migrations[n-1].Version)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		logger.Info().
			Int("version", m.Version).
			Str("description", m.Description).
			Msg("applying migration")

		err := withTx(conn, func(tx *sql.Tx) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			_, err := tx.Exec(
				"INSERT INTO schema_version (version, applied_at, description) VALUES (?, ?, ?)",
				m.Version, NowMs(), m.Description,
			)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func schemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// CurrentVersion returns the schema version of the chat store
func (d *DB) CurrentVersion() (int, error) {
	return schemaVersion(d.conn)
}
