package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"comer/internal/domain"
	"comer/internal/models"

	"cloud.google.com/go/civil"
)

const experienceColumns = `id, owner_id, title, description, languages, running_time, minimum_age,
    country, city, state, address, full_address, criteria_of_guest, longitude, latitude,
    files, perks, notice, start_time, end_time, kids_allowed, pets_allowed, max_guest,
    price, currency, start_date, end_date, cancellation1, cancellation2, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperience(row rowScanner) (*models.Experience, error) {
	var (
		e                       models.Experience
		languages, files, perks string
		startDate, endDate      string
	)
	err := row.Scan(
		&e.ID, &e.OwnerID, &e.Title, &e.Description, &languages, &e.RunningTime, &e.MinimumAge,
		&e.Country, &e.City, &e.State, &e.Address, &e.FullAddress, &e.CriteriaOfGuest, &e.Longitude, &e.Latitude,
		&files, &perks, &e.Notice, &e.StartTime, &e.EndTime, &e.KidsAllowed, &e.PetsAllowed, &e.MaxGuest,
		&e.Price, &e.Currency, &startDate, &endDate, &e.Cancellation1, &e.Cancellation2, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(languages, &e.Languages); err != nil {
		return nil, err
	}
	if err := fromJSON(files, &e.Files); err != nil {
		return nil, err
	}
	if err := fromJSON(perks, &e.Perks); err != nil {
		return nil, err
	}
	if e.StartDate, err = parseDate(startDate); err != nil {
		return nil, err
	}
	if e.EndDate, err = parseDate(endDate); err != nil {
		return nil, err
	}
	return &e, nil
}

func (db *DB) CreateExperience(ctx context.Context, exp *models.Experience, ledger *models.Ledger) error {
	languages, err := toJSON(exp.Languages)
	if err != nil {
		return err
	}
	files, err := toJSON(exp.Files)
	if err != nil {
		return err
	}
	perks, err := toJSON(exp.Perks)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	now := time.Now()
	_, err = tx.ExecContext(ctx, `INSERT INTO experiences (`+experienceColumns+`)
        VALUES (`+placeholders(31)+`)`,
		exp.ID, exp.OwnerID, exp.Title, exp.Description, languages, exp.RunningTime, exp.MinimumAge,
		exp.Country, exp.City, exp.State, exp.Address, exp.FullAddress, exp.CriteriaOfGuest, exp.Longitude, exp.Latitude,
		files, perks, exp.Notice, exp.StartTime, exp.EndTime, exp.KidsAllowed, exp.PetsAllowed, exp.MaxGuest,
		exp.Price, exp.Currency, exp.StartDate.String(), exp.EndDate.String(), exp.Cancellation1, exp.Cancellation2, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert experience: %w", err)
	}

	if err := replaceTags(ctx, tx, exp.ID, exp.Tags); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO ledgers (id, experience_id, version, created_at, updated_at) VALUES (?, ?, 1, ?, ?)`,
		ledger.ID, exp.ID, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert ledger: %w", err)
	}

	for _, s := range ledger.Slots {
		if err := insertSlot(ctx, tx, ledger.ID, s); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit experience: %w", err)
	}

	exp.CreatedAt, exp.UpdatedAt = now, now
	ledger.ExperienceID = exp.ID
	ledger.Version = 1
	ledger.CreatedAt, ledger.UpdatedAt = now, now
	return nil
}

func replaceTags(ctx context.Context, q queryer, experienceID string, tags []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM experience_tags WHERE experience_id = ?`, experienceID); err != nil {
		return fmt.Errorf("failed to clear tags: %w", err)
	}
	for _, tag := range models.NormalizeTags(tags) {
		if _, err := q.ExecContext(ctx, `INSERT INTO experience_tags (experience_id, tag) VALUES (?, ?)`, experienceID, tag); err != nil {
			return fmt.Errorf("failed to insert tag: %w", err)
		}
	}
	return nil
}

func (db *DB) GetExperience(ctx context.Context, id string) (*models.Experience, error) {
	exp, err := scanExperience(db.QueryRowContext(ctx, `SELECT `+experienceColumns+` FROM experiences WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrExperienceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experience: %w", err)
	}
	if err := db.attachTagsAndLikes(ctx, []*models.Experience{exp}); err != nil {
		return nil, err
	}
	return exp, nil
}

// UpdateExperience writes descriptive fields. Schedule fields only change through RedefineAvailability.
func (db *DB) UpdateExperience(ctx context.Context, exp *models.Experience) error {
	languages, err := toJSON(exp.Languages)
	if err != nil {
		return err
	}
	files, err := toJSON(exp.Files)
	if err != nil {
		return err
	}
	perks, err := toJSON(exp.Perks)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	now := time.Now()
	res, err := tx.ExecContext(ctx, `UPDATE experiences SET
            title = ?, description = ?, languages = ?, minimum_age = ?, country = ?, city = ?, state = ?,
            address = ?, full_address = ?, criteria_of_guest = ?, longitude = ?, latitude = ?, files = ?,
            perks = ?, notice = ?, kids_allowed = ?, pets_allowed = ?, cancellation1 = ?, cancellation2 = ?,
            updated_at = ?
        WHERE id = ?`,
		exp.Title, exp.Description, languages, exp.MinimumAge, exp.Country, exp.City, exp.State,
		exp.Address, exp.FullAddress, exp.CriteriaOfGuest, exp.Longitude, exp.Latitude, files,
		perks, exp.Notice, exp.KidsAllowed, exp.PetsAllowed, exp.Cancellation1, exp.Cancellation2,
		now, exp.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update experience: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrExperienceNotFound
	}

	if err := replaceTags(ctx, tx, exp.ID, exp.Tags); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit experience update: %w", err)
	}
	exp.UpdatedAt = now
	return nil
}

func (db *DB) DeleteExperience(ctx context.Context, id string) ([]models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM experiences WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrExperienceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check experience: %w", err)
	}

	var dropped []models.Booking
	var ledgerID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM ledgers WHERE experience_id = ?`, id).Scan(&ledgerID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to find ledger: %w", err)
	default:
		dropped, err = loadBookings(ctx, tx, ledgerID)
		if err != nil {
			return nil, err
		}
		for _, q := range []string{
			`DELETE FROM bookings WHERE ledger_id = ?`,
			`DELETE FROM slots WHERE ledger_id = ?`,
			`DELETE FROM ledgers WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, ledgerID); err != nil {
				return nil, fmt.Errorf("failed to delete ledger: %w", err)
			}
		}
	}

	for _, q := range []string{
		`DELETE FROM experience_tags WHERE experience_id = ?`,
		`DELETE FROM experience_likes WHERE experience_id = ?`,
		`DELETE FROM experiences WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return nil, fmt.Errorf("failed to delete experience: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit experience delete: %w", err)
	}
	return dropped, nil
}

func (db *DB) ListExperiencesByOwner(ctx context.Context, ownerID string) ([]*models.Experience, error) {
	return db.queryExperiences(ctx,
		`SELECT `+experienceColumns+` FROM experiences WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
}

func (db *DB) SampleExperiences(ctx context.Context, activeOn civil.Date, limit int) ([]*models.Experience, error) {
	return db.queryExperiences(ctx,
		`SELECT `+experienceColumns+` FROM experiences WHERE end_date >= ? ORDER BY RANDOM() LIMIT ?`,
		activeOn.String(), limit)
}

func (db *DB) SearchExperiences(ctx context.Context, q models.ExperienceQuery) ([]*models.Experience, error) {
	query := `SELECT ` + experienceColumns + ` FROM experiences WHERE 1 = 1`
	var args []any

	if q.City != "" {
		query += ` AND city LIKE '%' || ? || '%'`
		args = append(args, q.City)
	}
	if q.StartDate != nil {
		query += ` AND start_date >= ?`
		args = append(args, q.StartDate.String())
	}
	if q.EndDate != nil {
		query += ` AND end_date <= ?`
		args = append(args, q.EndDate.String())
	}
	if tags := models.NormalizeTags(q.Tags); len(tags) > 0 {
		query += ` AND id IN (SELECT experience_id FROM experience_tags WHERE tag IN (` + placeholders(len(tags)) + `))`
		args = append(args, stringArgs(tags)...)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY start_date ASC, id ASC LIMIT ?`
	args = append(args, limit)

	return db.queryExperiences(ctx, query, args...)
}

func (db *DB) queryExperiences(ctx context.Context, query string, args ...any) ([]*models.Experience, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query experiences: %w", err)
	}
	defer rows.Close()

	var out []*models.Experience
	for rows.Next() {
		exp, err := scanExperience(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experience: %w", err)
		}
		out = append(out, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate experiences: %w", err)
	}

	if err := db.attachTagsAndLikes(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (db *DB) attachTagsAndLikes(ctx context.Context, exps []*models.Experience) error {
	if len(exps) == 0 {
		return nil
	}
	byID := make(map[string]*models.Experience, len(exps))
	ids := make([]string, 0, len(exps))
	for _, e := range exps {
		e.Tags = []string{}
		e.Likes = []string{}
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}

	in := placeholders(len(ids))
	if err := db.collectPairs(ctx,
		`SELECT experience_id, tag FROM experience_tags WHERE experience_id IN (`+in+`) ORDER BY tag`,
		ids, func(id, v string) { byID[id].Tags = append(byID[id].Tags, v) }); err != nil {
		return fmt.Errorf("failed to load tags: %w", err)
	}
	if err := db.collectPairs(ctx,
		`SELECT experience_id, user_id FROM experience_likes WHERE experience_id IN (`+in+`) ORDER BY created_at`,
		ids, func(id, v string) { byID[id].Likes = append(byID[id].Likes, v) }); err != nil {
		return fmt.Errorf("failed to load likes: %w", err)
	}
	return nil
}

func (db *DB) collectPairs(ctx context.Context, query string, ids []string, fn func(id, value string)) error {
	rows, err := db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id, v string
		if err := rows.Scan(&id, &v); err != nil {
			return err
		}
		fn(id, v)
	}
	return rows.Err()
}

func (db *DB) ToggleExperienceLike(ctx context.Context, experienceID, userID string) (models.ToggleResult, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return models.ToggleResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM experiences WHERE id = ?`, experienceID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ToggleResult{}, domain.ErrExperienceNotFound
	}
	if err != nil {
		return models.ToggleResult{}, fmt.Errorf("failed to check experience: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM experience_likes WHERE experience_id = ? AND user_id = ?`, experienceID, userID)
	if err != nil {
		return models.ToggleResult{}, fmt.Errorf("failed to remove like: %w", err)
	}
	removed, _ := res.RowsAffected()
	if removed == 0 {
		_, err = tx.ExecContext(ctx, `INSERT INTO experience_likes (experience_id, user_id, created_at) VALUES (?, ?, ?)`,
			experienceID, userID, time.Now())
		if err != nil {
			return models.ToggleResult{}, fmt.Errorf("failed to add like: %w", err)
		}
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM experience_likes WHERE experience_id = ?`, experienceID).Scan(&count); err != nil {
		return models.ToggleResult{}, fmt.Errorf("failed to count likes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.ToggleResult{}, fmt.Errorf("failed to commit like: %w", err)
	}
	return models.ToggleResult{Active: removed == 0, Count: count}, nil
}
