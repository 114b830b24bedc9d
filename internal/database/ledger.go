package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"comer/internal/domain"
	"comer/internal/ledger"
	"comer/internal/models"
)

func insertSlot(ctx context.Context, q queryer, ledgerID string, s models.Slot) error {
	_, err := q.ExecContext(ctx, `INSERT INTO slots (id, ledger_id, date, start_time, end_time, capacity, remaining, price, currency)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, ledgerID, s.Date.String(), s.StartTime, s.EndTime, s.Capacity, s.Remaining, s.Price, s.Currency)
	if err != nil {
		return fmt.Errorf("failed to insert slot: %w", err)
	}
	return nil
}

func (db *DB) GetLedger(ctx context.Context, experienceID string) (*models.Ledger, error) {
	var l *models.Ledger
	err := db.readTx(ctx, func(q queryer) error {
		var err error
		l, err = loadLedger(ctx, q, experienceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// loadLedger reads a ledger with its slots and bookings. Missing experience
// and missing ledger are reported separately.
func loadLedger(ctx context.Context, q queryer, experienceID string) (*models.Ledger, error) {
	var exists int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM experiences WHERE id = ?`, experienceID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrExperienceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check experience: %w", err)
	}

	var l models.Ledger
	err = q.QueryRowContext(ctx, `SELECT id, experience_id, version, created_at, updated_at FROM ledgers WHERE experience_id = ?`,
		experienceID).Scan(&l.ID, &l.ExperienceID, &l.Version, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
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

func loadSlots(ctx context.Context, q queryer, ledgerID string) ([]models.Slot, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, date, start_time, end_time, capacity, remaining, price, currency
        FROM slots WHERE ledger_id = ? ORDER BY date ASC`, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get slots: %w", err)
	}
	defer rows.Close()

	slots := []models.Slot{}
	for rows.Next() {
		var (
			s    models.Slot
			date string
		)
		if err := rows.Scan(&s.ID, &date, &s.StartTime, &s.EndTime, &s.Capacity, &s.Remaining, &s.Price, &s.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		if s.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

const bookingColumns = `id, ledger_id, experience_id, slot_id, user_id, user_email, date, start_time, end_time, price, currency, created_at`

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b    models.Booking
		date string
	)
	err := row.Scan(&b.ID, &b.LedgerID, &b.ExperienceID, &b.SlotID, &b.UserID, &b.UserEmail,
		&date, &b.StartTime, &b.EndTime, &b.Price, &b.Currency, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	if b.Date, err = parseDate(date); err != nil {
		return nil, err
	}
	return &b, nil
}

func loadBookings(ctx context.Context, q queryer, ledgerID string) ([]models.Booking, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE ledger_id = ? ORDER BY created_at ASC, id ASC`, ledgerID)
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

func bumpLedgerVersion(ctx context.Context, q queryer, ledgerID string, now time.Time) error {
	if _, err := q.ExecContext(ctx, `UPDATE ledgers SET version = version + 1, updated_at = ? WHERE id = ?`, now, ledgerID); err != nil {
		return fmt.Errorf("failed to bump ledger version: %w", err)
	}
	return nil
}

func (db *DB) RedefineAvailability(
	ctx context.Context,
	experienceID string,
	w models.Window,
	runningTime int,
	slots []models.Slot,
) (*models.Ledger, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	current, err := loadLedger(ctx, tx, experienceID)
	if err != nil {
		return nil, err
	}

	plan, err := ledger.PlanRedefinition(current, slots)
	if err != nil {
		return nil, err
	}

	for _, id := range plan.Delete {
		if _, err := tx.ExecContext(ctx, `DELETE FROM slots WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to delete slot: %w", err)
		}
	}
	for _, s := range plan.Update {
		_, err := tx.ExecContext(ctx, `UPDATE slots SET start_time = ?, end_time = ?, capacity = ?, remaining = ?, price = ?, currency = ?
            WHERE id = ?`, s.StartTime, s.EndTime, s.Capacity, s.Remaining, s.Price, s.Currency, s.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to update slot: %w", err)
		}
	}
	for _, s := range plan.Insert {
		if err := insertSlot(ctx, tx, current.ID, s); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `UPDATE experiences SET start_date = ?, end_date = ?, start_time = ?, end_time = ?,
            max_guest = ?, price = ?, currency = ?, running_time = ?, updated_at = ?
        WHERE id = ?`,
		w.StartDate.String(), w.EndDate.String(), w.StartTime, w.EndTime,
		w.MaxGuest, w.Price, w.Currency, runningTime, now, experienceID)
	if err != nil {
		return nil, fmt.Errorf("failed to update experience window: %w", err)
	}

	if err := bumpLedgerVersion(ctx, tx, current.ID, now); err != nil {
		return nil, err
	}

	updated, err := loadLedger(ctx, tx, experienceID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit availability: %w", err)
	}
	return updated, nil
}

// ListUserLedgers returns every ledger holding a booking of userID. Each
// ledger carries only that user's bookings.
func (db *DB) ListUserLedgers(ctx context.Context, userID string) ([]models.UserLedger, error) {
	rows, err := db.reader.QueryContext(ctx, `SELECT DISTINCT experience_id FROM bookings WHERE user_id = ? ORDER BY experience_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list booked experiences: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan experience id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.UserLedger, 0, len(ids))
	for _, id := range ids {
		exp, err := db.GetExperience(ctx, id)
		if errors.Is(err, domain.ErrExperienceNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		l, err := db.GetLedger(ctx, id)
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
