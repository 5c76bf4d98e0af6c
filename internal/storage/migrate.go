package storage

import (
	"database/sql"
	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

// applySchema creates tables and indexes that do not exist yet. The DDL is
// idempotent so it runs on every startup.
func applySchema(db *sql.DB) error {
	_, err := db.Exec(schemaSQL)
	return err
}
