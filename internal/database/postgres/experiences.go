package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"comer/internal/domain"
	"comer/internal/models"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
)

const experienceColumns = `id, owner_id, title, description, languages, running_time, minimum_age,
    country, city, state, address, full_address, criteria_of_guest, longitude, latitude,
    files, perks, notice, start_time, end_time, kids_allowed, pets_allowed, max_guest,
    price, currency, tags, start_date, end_date, cancellation1, cancellation2, created_at, updated_at,
    COALESCE((SELECT array_agg(l.user_id ORDER BY l.created_at) FROM experience_likes l WHERE l.experience_id = experiences.id), '{}')`

func scanExperience(row pgx.Row) (*models.Experience, error) {
	var (
		e                  models.Experience
		startDate, endDate time.Time
	)
	err := row.Scan(
		&e.ID, &e.OwnerID, &e.Title, &e.Description, &e.Languages, &e.RunningTime, &e.MinimumAge,
		&e.Country, &e.City, &e.State, &e.Address, &e.FullAddress, &e.CriteriaOfGuest, &e.Longitude, &e.Latitude,
		&e.Files, &e.Perks, &e.Notice, &e.StartTime, &e.EndTime, &e.KidsAllowed, &e.PetsAllowed, &e.MaxGuest,
		&e.Price, &e.Currency, &e.Tags, &startDate, &endDate, &e.Cancellation1, &e.Cancellation2, &e.CreatedAt, &e.UpdatedAt,
		&e.Likes,
	)
	if err != nil {
		return nil, err
	}
	e.StartDate, e.EndDate = scanDate(startDate), scanDate(endDate)
	return &e, nil
}

func (s *Store) CreateExperience(ctx context.Context, exp *models.Experience, ledger *models.Ledger) error {
	now := time.Now()
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO experiences (id, owner_id, title, description, languages, running_time, minimum_age,
                country, city, state, address, full_address, criteria_of_guest, longitude, latitude,
                files, perks, notice, start_time, end_time, kids_allowed, pets_allowed, max_guest,
                price, currency, tags, start_date, end_date, cancellation1, cancellation2, created_at, updated_at)
            VALUES (@id, @owner_id, @title, @description, @languages, @running_time, @minimum_age,
                @country, @city, @state, @address, @full_address, @criteria_of_guest, @longitude, @latitude,
                @files, @perks, @notice, @start_time, @end_time, @kids_allowed, @pets_allowed, @max_guest,
                @price, @currency, @tags, @start_date, @end_date, @cancellation1, @cancellation2, @now, @now)`,
			pgx.NamedArgs{
				"id":                exp.ID,
				"owner_id":          exp.OwnerID,
				"title":             exp.Title,
				"description":       exp.Description,
				"languages":         nonNil(exp.Languages),
				"running_time":      exp.RunningTime,
				"minimum_age":       exp.MinimumAge,
				"country":           exp.Country,
				"city":              exp.City,
				"state":             exp.State,
				"address":           exp.Address,
				"full_address":      exp.FullAddress,
				"criteria_of_guest": exp.CriteriaOfGuest,
				"longitude":         exp.Longitude,
				"latitude":          exp.Latitude,
				"files":             nonNil(exp.Files),
				"perks":             exp.Perks,
				"notice":            exp.Notice,
				"start_time":        exp.StartTime,
				"end_time":          exp.EndTime,
				"kids_allowed":      exp.KidsAllowed,
				"pets_allowed":      exp.PetsAllowed,
				"max_guest":         exp.MaxGuest,
				"price":             exp.Price,
				"currency":          exp.Currency,
				"tags":              nonNil(models.NormalizeTags(exp.Tags)),
				"start_date":        dateArg(exp.StartDate),
				"end_date":          dateArg(exp.EndDate),
				"cancellation1":     exp.Cancellation1,
				"cancellation2":     exp.Cancellation2,
				"now":               now,
			})
		if err != nil {
			return fmt.Errorf("failed to insert experience: %w", err)
		}

		_, err = tx.Exec(ctx, `INSERT INTO ledgers (id, experience_id, version, created_at, updated_at) VALUES ($1, $2, 1, $3, $3)`,
			ledger.ID, exp.ID, now)
		if err != nil {
			return fmt.Errorf("failed to insert ledger: %w", err)
		}

		for _, sl := range ledger.Slots {
			if err := insertSlot(ctx, tx, ledger.ID, sl); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	exp.CreatedAt, exp.UpdatedAt = now, now
	ledger.ExperienceID = exp.ID
	ledger.Version = 1
	ledger.CreatedAt, ledger.UpdatedAt = now, now
	return nil
}

func (s *Store) GetExperience(ctx context.Context, id string) (*models.Experience, error) {
	exp, err := scanExperience(s.pool.QueryRow(ctx, `SELECT `+experienceColumns+` FROM experiences WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrExperienceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experience: %w", err)
	}
	return exp, nil
}

// UpdateExperience writes descriptive fields. Schedule fields only change through RedefineAvailability.
func (s *Store) UpdateExperience(ctx context.Context, exp *models.Experience) error {
	now := time.Now()
	tag, err := s.pool.Exec(ctx, `UPDATE experiences SET
            title = $1, description = $2, languages = $3, minimum_age = $4, country = $5, city = $6, state = $7,
            address = $8, full_address = $9, criteria_of_guest = $10, longitude = $11, latitude = $12, files = $13,
            perks = $14, notice = $15, kids_allowed = $16, pets_allowed = $17, cancellation1 = $18, cancellation2 = $19,
            tags = $20, updated_at = $21
        WHERE id = $22`,
		exp.Title, exp.Description, nonNil(exp.Languages), exp.MinimumAge, exp.Country, exp.City, exp.State,
		exp.Address, exp.FullAddress, exp.CriteriaOfGuest, exp.Longitude, exp.Latitude, nonNil(exp.Files),
		exp.Perks, exp.Notice, exp.KidsAllowed, exp.PetsAllowed, exp.Cancellation1, exp.Cancellation2,
		nonNil(models.NormalizeTags(exp.Tags)), now, exp.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update experience: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrExperienceNotFound
	}
	exp.UpdatedAt = now
	return nil
}

func (s *Store) DeleteExperience(ctx context.Context, id string) ([]models.Booking, error) {
	var dropped []models.Booking
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		found, err := exists(ctx, tx, `SELECT 1 FROM experiences WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return fmt.Errorf("failed to check experience: %w", err)
		}
		if !found {
			return domain.ErrExperienceNotFound
		}

		var ledgerID string
		err = tx.QueryRow(ctx, `SELECT id FROM ledgers WHERE experience_id = $1 FOR UPDATE`, id).Scan(&ledgerID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to find ledger: %w", err)
		default:
			if dropped, err = loadBookings(ctx, tx, ledgerID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `DELETE FROM bookings WHERE ledger_id = $1`, ledgerID); err != nil {
				return fmt.Errorf("failed to delete bookings: %w", err)
			}
		}

		// ledger, slots and likes cascade
		if _, err := tx.Exec(ctx, `DELETE FROM experiences WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete experience: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dropped, nil
}

func (s *Store) ListExperiencesByOwner(ctx context.Context, ownerID string) ([]*models.Experience, error) {
	return s.queryExperiences(ctx,
		`SELECT `+experienceColumns+` FROM experiences WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
}

func (s *Store) SampleExperiences(ctx context.Context, activeOn civil.Date, limit int) ([]*models.Experience, error) {
	return s.queryExperiences(ctx,
		`SELECT `+experienceColumns+` FROM experiences WHERE end_date >= $1 ORDER BY random() LIMIT $2`,
		dateArg(activeOn), limit)
}

func (s *Store) SearchExperiences(ctx context.Context, q models.ExperienceQuery) ([]*models.Experience, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	var startDate, endDate *time.Time
	if q.StartDate != nil {
		t := dateArg(*q.StartDate)
		startDate = &t
	}
	if q.EndDate != nil {
		t := dateArg(*q.EndDate)
		endDate = &t
	}

	return s.queryExperiences(ctx, `SELECT `+experienceColumns+` FROM experiences
        WHERE (@city = '' OR city ILIKE '%' || @city || '%')
          AND (@start_date::date IS NULL OR start_date >= @start_date)
          AND (@end_date::date IS NULL OR end_date <= @end_date)
          AND (cardinality(@tags::text[]) = 0 OR tags && @tags)
        ORDER BY start_date ASC, id ASC
        LIMIT @limit`,
		pgx.NamedArgs{
			"city":       q.City,
			"start_date": startDate,
			"end_date":   endDate,
			"tags":       nonNil(models.NormalizeTags(q.Tags)),
			"limit":      limit,
		})
}

func (s *Store) queryExperiences(ctx context.Context, query string, args ...any) ([]*models.Experience, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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
	return out, nil
}

func (s *Store) ToggleExperienceLike(ctx context.Context, experienceID, userID string) (models.ToggleResult, error) {
	var res models.ToggleResult
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		found, err := exists(ctx, tx, `SELECT 1 FROM experiences WHERE id = $1`, experienceID)
		if err != nil {
			return fmt.Errorf("failed to check experience: %w", err)
		}
		if !found {
			return domain.ErrExperienceNotFound
		}

		tag, err := tx.Exec(ctx, `DELETE FROM experience_likes WHERE experience_id = $1 AND user_id = $2`, experienceID, userID)
		if err != nil {
			return fmt.Errorf("failed to remove like: %w", err)
		}
		res.Active = tag.RowsAffected() == 0
		if res.Active {
			if _, err := tx.Exec(ctx, `INSERT INTO experience_likes (experience_id, user_id) VALUES ($1, $2)`, experienceID, userID); err != nil {
				return fmt.Errorf("failed to add like: %w", err)
			}
		}

		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM experience_likes WHERE experience_id = $1`, experienceID).Scan(&res.Count); err != nil {
			return fmt.Errorf("failed to count likes: %w", err)
		}
		return nil
	})
	return res, err
}
