// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means a C compiler at build time and
// painful cross-compilation. modernc.org/sqlite is a pure Go translation of
// the SQLite sources — works everywhere Go works.
//
// The auth flows lean on SQLite for their correctness guarantees: OTP
// consumption and refresh-token rotation are single conditional UPDATE
// statements, so SQLite's statement-level atomicity is what makes two
// concurrent verifies (or refreshes) resolve to at most one winner.
package sqlite

import (
	"database/sql"
	"fmt"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides the repository methods.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/sneakease.db" → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests, lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Ping forces an immediate connection so a bad path or permissions issue
	// surfaces here rather than on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode allows concurrent reads while a write is in progress —
	// important for a per-request concurrent server.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. The provider sub-records
	// reference users with ON DELETE CASCADE, so they must be on.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps it idempotent.
//
// Schema notes:
//   - One users row per person; refresh_token is NULL until a session has
//     been issued. Addresses are stored as a JSON array — the auth core
//     carries them opaquely, the storefront layer does the CRUD.
//   - One auth_providers row per (user, provider). The partial unique
//     indexes enforce: one account per email, one per phone number, one per
//     federated (provider, provider_id).
//   - otp_expires_at is stored as Unix seconds so the ConsumeOTP expiry
//     comparison happens inside the UPDATE's WHERE clause with plain integer
//     arithmetic.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			refresh_token TEXT,
			addresses     TEXT NOT NULL DEFAULT '[]',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS auth_providers (
			user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			provider       TEXT NOT NULL,
			provider_id    TEXT,
			display_name   TEXT NOT NULL DEFAULT '',
			email          TEXT,
			phone_number   TEXT,
			password_hash  TEXT NOT NULL DEFAULT '',
			avatar_url     TEXT NOT NULL DEFAULT '',
			is_active      INTEGER NOT NULL DEFAULT 0,
			otp            INTEGER,
			otp_expires_at INTEGER,
			PRIMARY KEY (user_id, provider)
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_providers_federated
			ON auth_providers(provider, provider_id) WHERE provider_id IS NOT NULL;
		CREATE UNIQUE INDEX IF NOT EXISTS idx_providers_email
			ON auth_providers(email) WHERE provider = 'email';
		CREATE UNIQUE INDEX IF NOT EXISTS idx_providers_phone
			ON auth_providers(phone_number) WHERE provider = 'phone';
	`)
	if err != nil {
		return fmt.Errorf("creating auth schema: %w", err)
	}

	return nil
}
