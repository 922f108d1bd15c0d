// Package sqlite implements the repository interfaces on SQLite.
//
// modernc.org/sqlite is a pure Go translation of SQLite; no CGo, no
// external server, a single database file (or ":memory:" in tests).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides the repository methods.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" for a throwaway in-memory database in tests.
//
// Connection options ride on the DSN so every connection in the pool
// gets them; an Exec'd PRAGMA would configure only whichever single
// connection happened to run it.
//
//   - journal_mode(WAL): concurrent reads while a write is in progress.
//     SQLite still serializes writers, which is what makes concurrent
//     key rotations for the same identity last-commit-wins rather than
//     torn.
//   - _txlock=immediate: transactions take the write lock at BEGIN, not
//     at the first write. Without this, two racing Creates both open
//     read snapshots and the loser fails with SQLITE_BUSY before its
//     INSERT ever reaches the UNIQUE constraint; with it the loser
//     waits for the winner, re-reads, and reports the conflict.
//   - busy_timeout(5000): a connection waiting on the write lock blocks
//     for up to 5s instead of erroring immediately.
func New(dbPath string) (*DB, error) {
	dsn := dbPath + "?_txlock=immediate" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" gets its own empty database, so a
	// pool of them would scatter rows across disjoint stores. Pin the
	// pool to a single connection.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	// Force an immediate connection so a bad path or permissions problem
	// surfaces here rather than on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
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

// Health verifies the store is reachable. Backs the /health endpoint.
func (db *DB) Health(ctx context.Context) error {
	var one int
	if err := db.conn.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("sqlite: health check: %w", err)
	}
	return nil
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps this safe
// to run on every startup.
//
// The UNIQUE constraints on username and email are what close the
// concurrent-registration race: two creates that both pass the existence
// check cannot both insert. api_key gets a partial unique index so that
// the many rows with no key yet ('') don't collide, while two identities
// can never share a live key.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			first_name    TEXT NOT NULL,
			last_name     TEXT NOT NULL,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			api_key       TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_api_key
			ON users(api_key) WHERE api_key != '';
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	return nil
}
