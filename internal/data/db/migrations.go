package db

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one versioned schema step. Versions apply in ascending order
// exactly once; the current version lives in schema_version.
type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create_deliveries",
		SQL: `
CREATE TABLE IF NOT EXISTS deliveries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT    NOT NULL,
	type       TEXT    NOT NULL,
	body       TEXT    NOT NULL DEFAULT '',
	action     TEXT    NOT NULL DEFAULT '',
	parameter  TEXT    NOT NULL DEFAULT '',
	result     TEXT    NOT NULL DEFAULT '',
	ephemeral  INTEGER NOT NULL DEFAULT 0,
	ok         INTEGER NOT NULL DEFAULT 1,
	error      TEXT    NOT NULL DEFAULT '',
	created_at TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deliveries_session ON deliveries (session_id, id);
`,
	},
}

// Migrate applies all pending migrations inside transactions.
func Migrate(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := currentVersion(ctx, conn)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		if err := apply(ctx, conn, m); err != nil {
			return fmt.Errorf("apply migration %04d_%s: %w", m.Version, m.Name, err)
		}
	}

	return nil
}

func currentVersion(ctx context.Context, conn *sql.DB) (int, error) {
	var version int
	err := conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func apply(ctx context.Context, conn *sql.DB, m migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, m.Version); err != nil {
		return err
	}

	return tx.Commit()
}
