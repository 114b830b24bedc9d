package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"comer/internal/domain"
	"comer/internal/ledger"
	"comer/internal/models"

	"github.com/jackc/pgx/v5"
)

const bookingColumns = `id, ledger_id, experience_id, slot_id, user_id, user_email, date, start_time, end_time, price, currency, created_at`

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var (
		b    models.Booking
		date time.Time
	)
	err := row.Scan(&b.ID, &b.LedgerID, &b.ExperienceID, &b.SlotID, &b.UserID, &b.UserEmail,
		&date, &b.StartTime, &b.EndTime, &b.Price, &b.Currency, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	b.Date = scanDate(date)
	return &b, nil
}

func (s *Store) GetLedger(ctx context.Context, experienceID string) (*models.Ledger, error) {
	var l *models.Ledger
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		l, err = loadLedger(ctx, tx, experienceID, false)
		return err
	})
	return l, err
}

// loadLedger reads a ledger with its slots and bookings, optionally locking
// the ledger row. Missing experience and missing ledger are reported separately.
func loadLedger(ctx context.Context, q querier, experienceID string, lock bool) (*models.Ledger, error) {
	found, err := exists(ctx, q, `SELECT 1 FROM experiences WHERE id = $1`, experienceID)
	if err != nil {
		return nil, fmt.Errorf("failed to check experience: %w", err)
	}
	if !found {
		return nil, domain.ErrExperienceNotFound
	}

	query := `SELECT id, experience_id, version, created_at, updated_at FROM ledgers WHERE experience_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var l models.Ledger
	err = q.QueryRow(ctx, query, experienceID).Scan(&l.ID, &l.ExperienceID, &l.Version, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrLedgerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}

	if l.Slots, err = loadSlots(ctx, q, l.ID); err != nil {
		return nil, err
	}
	if l.Bookings, err = loadBookings(ctx, q, l.ID); err != nil {
		return nil, err
	}
	return &l, nil
}

func loadSlots(ctx context.Context, q querier, ledgerID string) ([]models.Slot, error) {
	rows, err := q.Query(ctx, `SELECT id, date, start_time, end_time, capacity, remaining, price, currency
        FROM slots WHERE ledger_id = $1 ORDER BY date ASC`, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get slots: %w", err)
	}
	defer rows.Close()

	slots := []models.Slot{}
	for rows.Next() {
		var (
			sl   models.Slot
			date time.Time
		)
		if err := rows.Scan(&sl.ID, &date, &sl.StartTime, &sl.EndTime, &sl.Capacity, &sl.Remaining, &sl.Price, &sl.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		sl.Date = scanDate(date)
		slots = append(slots, sl)
	}
	return slots, rows.Err()
}

func loadBookings(ctx context.Context, q querier, ledgerID string) ([]models.Booking, error) {
	rows, err := q.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE ledger_id = $1 ORDER BY created_at ASC, id ASC`, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings: %w", err)
	}
	defer rows.Close()

	bookings := []models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func (s *Store) RedefineAvailability(
	ctx context.Context,
	experienceID string,
	w models.Window,
	runningTime int,
	slots []models.Slot,
) (*models.Ledger, error) {
	var updated *models.Ledger
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		current, err := loadLedger(ctx, tx, experienceID, true)
		if err != nil {
			return err
		}

		plan, err := ledger.PlanRedefinition(current, slots)
		if err != nil {
			return err
		}

		for _, id := range plan.Delete {
			if _, err := tx.Exec(ctx, `DELETE FROM slots WHERE id = $1`, id); err != nil {
				return fmt.Errorf("failed to delete slot: %w", err)
			}
		}
		for _, sl := range plan.Update {
			_, err := tx.Exec(ctx, `UPDATE slots SET start_time = $1, end_time = $2, capacity = $3, remaining = $4, price = $5, currency = $6
                WHERE id = $7`, sl.StartTime, sl.EndTime, sl.Capacity, sl.Remaining, sl.Price, sl.Currency, sl.ID)
			if err != nil {
				return fmt.Errorf("failed to update slot: %w", err)
			}
		}
		for _, sl := range plan.Insert {
			if err := insertSlot(ctx, tx, current.ID, sl); err != nil {
				return err
			}
		}

		now := time.Now()
		_, err = tx.Exec(ctx, `UPDATE experiences SET start_date = $1, end_date = $2, start_time = $3, end_time = $4,
                max_guest = $5, price = $6, currency = $7, running_time = $8, updated_at = $9
            WHERE id = $10`,
			dateArg(w.StartDate), dateArg(w.EndDate), w.StartTime, w.EndTime,
			w.MaxGuest, w.Price, w.Currency, runningTime, now, experienceID)
		if err != nil {
			return fmt.Errorf("failed to update experience window: %w", err)
		}

		if err := bumpLedgerVersion(ctx, tx, current.ID, now); err != nil {
			return err
		}

		updated, err = loadLedger(ctx, tx, experienceID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListUserLedgers returns every ledger holding a booking of userID. Each
// ledger carries only that user's bookings.
func (s *Store) ListUserLedgers(ctx context.Context, userID string) ([]models.UserLedger, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT experience_id FROM bookings WHERE user_id = $1 ORDER BY experience_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list booked experiences: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan experience id: %w", err)
	}

	out := make([]models.UserLedger, 0, len(ids))
	for _, id := range ids {
		exp, err := s.GetExperience(ctx, id)
		if errors.Is(err, domain.ErrExperienceNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		l, err := s.GetLedger(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		l.Bookings = l.BookingsFor(userID)
		out = append(out, models.UserLedger{Experience: exp.Summary(), Ledger: *l})
	}
	return out, nil
}
