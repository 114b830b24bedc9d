package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"comer/internal/domain"
	"comer/internal/models"
)

// ReserveSlot books one unit of a slot. Preconditions are checked in order
// (experience, ledger, duplicate, slot, capacity) inside one transaction and
// the decrement is conditional on remaining > 0.
func (db *DB) ReserveSlot(ctx context.Context, req models.ReserveRequest, bookingID string) (*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM experiences WHERE id = ?`, req.ExperienceID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrExperienceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check experience: %w", err)
	}

	var ledgerID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM ledgers WHERE experience_id = ?`, req.ExperienceID).Scan(&ledgerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrLedgerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}

	var dup int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE user_id = ? AND slot_id = ?`, req.UserID, req.SlotID).Scan(&dup)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing booking: %w", err)
	}
	if dup > 0 {
		return nil, domain.ErrAlreadyBooked
	}

	var (
		b    = models.Booking{ID: bookingID, LedgerID: ledgerID, ExperienceID: req.ExperienceID, SlotID: req.SlotID, UserID: req.UserID, UserEmail: req.UserEmail}
		date string
	)
	err = tx.QueryRowContext(ctx, `SELECT date, start_time, end_time, price, currency FROM slots WHERE id = ? AND ledger_id = ?`,
		req.SlotID, ledgerID).Scan(&date, &b.StartTime, &b.EndTime, &b.Price, &b.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	if b.Date, err = parseDate(date); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `UPDATE slots SET remaining = remaining - 1 WHERE id = ? AND remaining > 0`, req.SlotID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrement slot: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	} else if n == 0 {
		return nil, domain.ErrSlotExhausted
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `INSERT INTO bookings (`+bookingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.LedgerID, b.ExperienceID, b.SlotID, b.UserID, b.UserEmail,
		b.Date.String(), b.StartTime, b.EndTime, b.Price, b.Currency, now)
	if isUniqueViolation(err) {
		return nil, domain.ErrAlreadyBooked
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert booking: %w", err)
	}

	if err := bumpLedgerVersion(ctx, tx, ledgerID, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit booking: %w", err)
	}

	b.CreatedAt = now
	return &b, nil
}

// CancelBooking removes the booking of userID and returns one unit to its slot.
func (db *DB) CancelBooking(ctx context.Context, bookingID, userID string) (*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	b, err := scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if b.UserID != userID {
		return nil, domain.Forbidden("booking belongs to another user")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, bookingID); err != nil {
		return nil, fmt.Errorf("failed to delete booking: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE slots SET remaining = remaining + 1 WHERE id = ? AND remaining < capacity`, b.SlotID)
	if err != nil {
		return nil, fmt.Errorf("failed to restore slot capacity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.Internal("failed to restore slot capacity", fmt.Errorf("slot %s missing or full", b.SlotID))
	}

	if err := bumpLedgerVersion(ctx, tx, b.LedgerID, time.Now()); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}
	return b, nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}
