package clientdata

import (
	_ "embed"
	"database/sql"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates the cache tables listed in AllTables against db, which is
// expected to be the same SQLite connection the rest of the pipeline uses.
// Idempotent: every statement is CREATE TABLE/INDEX IF NOT EXISTS.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply client data cache schema: %w", err)
	}
	return nil
}
