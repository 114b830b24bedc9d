package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB is the sqlite-backed store. Writers open IMMEDIATE transactions so that
// the capacity check and decrement of a reservation never interleave. Pure
// reads go through reader, whose transactions are DEFERRED and only take a
// WAL snapshot.
type DB struct {
	*sql.DB
	reader *sql.DB
	path   string
	logger *zerolog.Logger
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	reader, err := sql.Open("sqlite3", readerDSN(path))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open read connection: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{DB: db, reader: reader, path: path, logger: logger}, nil
}

func (db *DB) Close() error {
	return errors.Join(db.reader.Close(), db.DB.Close())
}

// readTx runs fn in a deferred transaction on the read pool, so it sees one
// snapshot without queuing behind reservations.
func (db *DB) readTx(ctx context.Context, fn func(q queryer) error) error {
	tx, err := db.reader.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer rollback(tx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Path returns the database file path, used by the backup service.
func (db *DB) Path() string {
	return db.path
}

func dsn(path string) string {
	return path + "?_busy_timeout=5000&_txlock=immediate&_journal_mode=WAL"
}

func readerDSN(path string) string {
	return path + "?_busy_timeout=5000&_txlock=deferred&_query_only=1"
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            email TEXT NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            first_name TEXT NOT NULL DEFAULT '',
            last_name TEXT NOT NULL DEFAULT '',
            phone_number TEXT NOT NULL DEFAULT '',
            profile_picture TEXT NOT NULL DEFAULT '',
            country TEXT NOT NULL DEFAULT '',
            city TEXT NOT NULL DEFAULT '',
            province TEXT NOT NULL DEFAULT '',
            zip TEXT NOT NULL DEFAULT '',
            street TEXT NOT NULL DEFAULT '',
            description TEXT NOT NULL DEFAULT '',
            is_verified BOOLEAN NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT 0,
            email_token TEXT,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS sessions (
            id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL,
            token_hash TEXT NOT NULL UNIQUE,
            expires_at DATETIME NOT NULL,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS experiences (
            id TEXT PRIMARY KEY,
            owner_id TEXT NOT NULL,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            languages TEXT NOT NULL DEFAULT '[]',
            running_time INTEGER NOT NULL,
            minimum_age INTEGER NOT NULL DEFAULT 0,
            country TEXT NOT NULL DEFAULT '',
            city TEXT NOT NULL DEFAULT '',
            state TEXT NOT NULL DEFAULT '',
            address TEXT NOT NULL DEFAULT '',
            full_address TEXT NOT NULL DEFAULT '',
            criteria_of_guest TEXT NOT NULL DEFAULT '',
            longitude REAL NOT NULL DEFAULT 0,
            latitude REAL NOT NULL DEFAULT 0,
            files TEXT NOT NULL DEFAULT '[]',
            perks TEXT NOT NULL DEFAULT '{}',
            notice TEXT NOT NULL DEFAULT '',
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            kids_allowed BOOLEAN NOT NULL DEFAULT 0,
            pets_allowed BOOLEAN NOT NULL DEFAULT 0,
            max_guest INTEGER NOT NULL,
            price REAL NOT NULL DEFAULT 0,
            currency TEXT NOT NULL DEFAULT '',
            start_date TEXT NOT NULL,
            end_date TEXT NOT NULL,
            cancellation1 BOOLEAN NOT NULL DEFAULT 0,
            cancellation2 BOOLEAN NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS experience_tags (
            experience_id TEXT NOT NULL,
            tag TEXT NOT NULL,
            PRIMARY KEY (experience_id, tag)
        )`,
		`CREATE TABLE IF NOT EXISTS experience_likes (
            experience_id TEXT NOT NULL,
            user_id TEXT NOT NULL,
            created_at DATETIME NOT NULL,
            PRIMARY KEY (experience_id, user_id)
        )`,
		`CREATE TABLE IF NOT EXISTS ledgers (
            id TEXT PRIMARY KEY,
            experience_id TEXT NOT NULL UNIQUE,
            version INTEGER NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS slots (
            id TEXT PRIMARY KEY,
            ledger_id TEXT NOT NULL,
            date TEXT NOT NULL,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            capacity INTEGER NOT NULL,
            remaining INTEGER NOT NULL CHECK (remaining >= 0),
            price REAL NOT NULL DEFAULT 0,
            currency TEXT NOT NULL DEFAULT '',
            UNIQUE (ledger_id, date)
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            ledger_id TEXT NOT NULL,
            experience_id TEXT NOT NULL,
            slot_id TEXT NOT NULL,
            user_id TEXT NOT NULL,
            user_email TEXT NOT NULL DEFAULT '',
            date TEXT NOT NULL,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            price REAL NOT NULL DEFAULT 0,
            currency TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            UNIQUE (user_id, slot_id)
        )`,
		`CREATE TABLE IF NOT EXISTS comments (
            id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL,
            experience_id TEXT NOT NULL,
            description TEXT NOT NULL,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS comment_reactions (
            comment_id TEXT NOT NULL,
            user_id TEXT NOT NULL,
            kind TEXT NOT NULL,
            created_at DATETIME NOT NULL,
            PRIMARY KEY (comment_id, user_id, kind)
        )`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            booking_id TEXT NOT NULL,
            payload TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_experiences_owner_id ON experiences(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_experiences_end_date ON experiences(end_date)`,
		`CREATE INDEX IF NOT EXISTS idx_experience_tags_tag ON experience_tags(tag)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_ledger_id ON slots(ledger_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_ledger_id ON bookings(ledger_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_slot_id ON bookings(slot_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_experience_id ON comments(experience_id)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_user_id ON comments(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func parseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("failed to parse stored date %q: %w", s, err)
	}
	return d, nil
}

func toJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode json column: %w", err)
	}
	return string(raw), nil
}

func fromJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("failed to decode json column: %w", err)
	}
	return nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
