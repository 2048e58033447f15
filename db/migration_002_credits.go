package db

import (
	"database/sql"
)

func init() {
	RegisterMigration(Migration{
		Version:     2,
		Description: "Add accounts table for chat credits",
		Up:          migration002_credits,
	})
}

func migration002_credits(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE accounts (
			username TEXT PRIMARY KEY,
			credits INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
	`)
	return err
}
