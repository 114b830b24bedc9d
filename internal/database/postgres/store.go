// Package postgres is the PostgreSQL implementation of the repository.
// Reservations lock the ledger row with SELECT ... FOR UPDATE so capacity
// checks of one experience are serialized while other experiences proceed.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"comer/internal/models"
	migrations "comer/migrations/postgres"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

const uniqueViolation = "23505"

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

// Open connects to dsn and applies pending migrations.
func Open(ctx context.Context, dsn string, logger *zerolog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{pool: pool, logger: logger}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info().Str("host", pool.Config().ConnConfig.Host).Msg("Database initialized")
	return s, nil
}

// Migrate applies the embedded goose migrations.
func (s *Store) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	for _, r := range results {
		s.logger.Info().Str("migration", r.Source.Path).Dur("duration", r.Duration).Msg("Migration applied")
	}
	return nil
}

func (s *Store) PingContext(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, fn)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func dateArg(d civil.Date) time.Time {
	return d.In(time.UTC)
}

func scanDate(t time.Time) civil.Date {
	return civil.DateOf(t)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// exists reports whether query returns a row.
func exists(ctx context.Context, q querier, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func bumpLedgerVersion(ctx context.Context, q querier, ledgerID string, now time.Time) error {
	if _, err := q.Exec(ctx, `UPDATE ledgers SET version = version + 1, updated_at = $1 WHERE id = $2`, now, ledgerID); err != nil {
		return fmt.Errorf("failed to bump ledger version: %w", err)
	}
	return nil
}

func insertSlot(ctx context.Context, q querier, ledgerID string, sl models.Slot) error {
	_, err := q.Exec(ctx, `INSERT INTO slots (id, ledger_id, date, start_time, end_time, capacity, remaining, price, currency)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sl.ID, ledgerID, dateArg(sl.Date), sl.StartTime, sl.EndTime, sl.Capacity, sl.Remaining, sl.Price, sl.Currency)
	if err != nil {
		return fmt.Errorf("failed to insert slot: %w", err)
	}
	return nil
}
