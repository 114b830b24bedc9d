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

const userColumns = `id, email, password_hash, first_name, last_name, phone_number, profile_picture,
    country, city, province, zip, street, description, is_verified, is_active, COALESCE(email_token, ''), created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.PhoneNumber, &u.ProfilePicture,
		&u.Country, &u.City, &u.Province, &u.Zip, &u.Street, &u.Description, &u.IsVerified, &u.IsActive, &u.EmailToken,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	now := time.Now()
	_, err := s.pool.Exec(ctx, `INSERT INTO users (id, email, password_hash, first_name, last_name, phone_number, profile_picture,
            country, city, province, zip, street, description, is_verified, is_active, email_token, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.PhoneNumber, u.ProfilePicture,
		u.Country, u.City, u.Province, u.Zip, u.Street, u.Description, u.IsVerified, u.IsActive, nullable(u.EmailToken), now)
	if isUniqueViolation(err) {
		return domain.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, `id = $1`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `email = $1`, email)
}

func (s *Store) GetUserByEmailToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, domain.ErrUserNotFound
	}
	return s.getUser(ctx, `email_token = $1`, token)
}

// VerifyUser activates the account and consumes its email token.
func (s *Store) VerifyUser(ctx context.Context, id string) error {
	return s.execUser(ctx, `UPDATE users SET is_verified = TRUE, is_active = TRUE, email_token = NULL, updated_at = $1 WHERE id = $2`,
		time.Now(), id)
}

func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	now := time.Now()
	err := s.execUser(ctx, `UPDATE users SET first_name = $1, last_name = $2, phone_number = $3, profile_picture = $4,
            country = $5, city = $6, province = $7, zip = $8, street = $9, description = $10, updated_at = $11
        WHERE id = $12`,
		u.FirstName, u.LastName, u.PhoneNumber, u.ProfilePicture,
		u.Country, u.City, u.Province, u.Zip, u.Street, u.Description, now, u.ID)
	if err != nil {
		return err
	}
	u.UpdatedAt = now
	return nil
}

func (s *Store) DeactivateUser(ctx context.Context, id string) error {
	return s.execUser(ctx, `UPDATE users SET is_active = FALSE, updated_at = $1 WHERE id = $2`, time.Now(), id)
}

func (s *Store) execUser(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	now := time.Now()
	_, err := s.pool.Exec(ctx, `INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at) VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.UserID, sess.TokenHash, sess.ExpiresAt, now)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	sess.CreatedAt = now
	return nil
}

func (s *Store) GetSessionByHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	var sess models.Session
	err := s.pool.QueryRow(ctx, `SELECT id, user_id, token_hash, expires_at, created_at FROM sessions WHERE token_hash = $1`,
		tokenHash).Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.ExpiresAt, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("Session")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *Store) DeleteUserSessions(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}
