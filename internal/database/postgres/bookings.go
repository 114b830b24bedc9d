package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"comer/internal/domain"
	"comer/internal/models"

	"github.com/jackc/pgx/v5"
)

// ReserveSlot books one unit of a slot. The ledger row is locked first, then
// preconditions are checked in order: experience, ledger, duplicate, slot, capacity.
func (s *Store) ReserveSlot(ctx context.Context, req models.ReserveRequest, bookingID string) (*models.Booking, error) {
	b := models.Booking{ID: bookingID, ExperienceID: req.ExperienceID, SlotID: req.SlotID, UserID: req.UserID, UserEmail: req.UserEmail}

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		found, err := exists(ctx, tx, `SELECT 1 FROM experiences WHERE id = $1`, req.ExperienceID)
		if err != nil {
			return fmt.Errorf("failed to check experience: %w", err)
		}
		if !found {
			return domain.ErrExperienceNotFound
		}

		err = tx.QueryRow(ctx, `SELECT id FROM ledgers WHERE experience_id = $1 FOR UPDATE`, req.ExperienceID).Scan(&b.LedgerID)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrLedgerNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock ledger: %w", err)
		}

		dup, err := exists(ctx, tx, `SELECT 1 FROM bookings WHERE user_id = $1 AND slot_id = $2`, req.UserID, req.SlotID)
		if err != nil {
			return fmt.Errorf("failed to check existing booking: %w", err)
		}
		if dup {
			return domain.ErrAlreadyBooked
		}

		var date time.Time
		err = tx.QueryRow(ctx, `SELECT date, start_time, end_time, price, currency FROM slots WHERE id = $1 AND ledger_id = $2`,
			req.SlotID, b.LedgerID).Scan(&date, &b.StartTime, &b.EndTime, &b.Price, &b.Currency)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrSlotNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get slot: %w", err)
		}
		b.Date = scanDate(date)

		tag, err := tx.Exec(ctx, `UPDATE slots SET remaining = remaining - 1 WHERE id = $1 AND remaining > 0`, req.SlotID)
		if err != nil {
			return fmt.Errorf("failed to decrement slot: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrSlotExhausted
		}

		b.CreatedAt = time.Now()
		_, err = tx.Exec(ctx, `INSERT INTO bookings (`+bookingColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			b.ID, b.LedgerID, b.ExperienceID, b.SlotID, b.UserID, b.UserEmail,
			date, b.StartTime, b.EndTime, b.Price, b.Currency, b.CreatedAt)
		if isUniqueViolation(err) {
			return domain.ErrAlreadyBooked
		}
		if err != nil {
			return fmt.Errorf("failed to insert booking: %w", err)
		}

		return bumpLedgerVersion(ctx, tx, b.LedgerID, b.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CancelBooking removes the booking of userID and returns one unit to its slot.
func (s *Store) CancelBooking(ctx context.Context, bookingID, userID string) (*models.Booking, error) {
	var b *models.Booking
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		b, err = scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, bookingID))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrBookingNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get booking: %w", err)
		}
		if b.UserID != userID {
			return domain.Forbidden("booking belongs to another user")
		}

		if _, err := tx.Exec(ctx, `SELECT 1 FROM ledgers WHERE id = $1 FOR UPDATE`, b.LedgerID); err != nil {
			return fmt.Errorf("failed to lock ledger: %w", err)
		}
		// A concurrent cancel may have removed the row while this one waited on the lock.
		del, err := tx.Exec(ctx, `DELETE FROM bookings WHERE id = $1 AND user_id = $2`, bookingID, userID)
		if err != nil {
			return fmt.Errorf("failed to delete booking: %w", err)
		}
		if del.RowsAffected() == 0 {
			return domain.ErrBookingNotFound
		}

		tag, err := tx.Exec(ctx, `UPDATE slots SET remaining = remaining + 1 WHERE id = $1 AND remaining < capacity`, b.SlotID)
		if err != nil {
			return fmt.Errorf("failed to restore slot capacity: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.Internal("failed to restore slot capacity", fmt.Errorf("slot %s missing or full", b.SlotID))
		}

		return bumpLedgerVersion(ctx, tx, b.LedgerID, time.Now())
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}
