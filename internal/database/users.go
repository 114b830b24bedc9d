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

const userColumns = `id, email, password_hash, first_name, last_name, phone_number, profile_picture,
    country, city, province, zip, street, description, is_verified, is_active, email_token, created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u     models.User
		token sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.PhoneNumber, &u.ProfilePicture,
		&u.Country, &u.City, &u.Province, &u.Zip, &u.Street, &u.Description, &u.IsVerified, &u.IsActive, &token,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.EmailToken = token.String
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (db *DB) CreateUser(ctx context.Context, u *models.User) error {
	now := time.Now()
	_, err := db.ExecContext(ctx, `INSERT INTO users (`+userColumns+`) VALUES (`+placeholders(18)+`)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.PhoneNumber, u.ProfilePicture,
		u.Country, u.City, u.Province, u.Zip, u.Street, u.Description, u.IsVerified, u.IsActive, nullString(u.EmailToken),
		now, now)
	if isUniqueViolation(err) {
		return domain.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

func (db *DB) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return db.getUser(ctx, `id = ?`, id)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.getUser(ctx, `email = ?`, email)
}

func (db *DB) GetUserByEmailToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, domain.ErrUserNotFound
	}
	return db.getUser(ctx, `email_token = ?`, token)
}

// VerifyUser activates the account and consumes its email token.
func (db *DB) VerifyUser(ctx context.Context, id string) error {
	return db.execUser(ctx, `UPDATE users SET is_verified = 1, is_active = 1, email_token = NULL, updated_at = ? WHERE id = ?`,
		time.Now(), id)
}

func (db *DB) UpdateUser(ctx context.Context, u *models.User) error {
	now := time.Now()
	err := db.execUser(ctx, `UPDATE users SET first_name = ?, last_name = ?, phone_number = ?, profile_picture = ?,
            country = ?, city = ?, province = ?, zip = ?, street = ?, description = ?, updated_at = ?
        WHERE id = ?`,
		u.FirstName, u.LastName, u.PhoneNumber, u.ProfilePicture,
		u.Country, u.City, u.Province, u.Zip, u.Street, u.Description, now, u.ID)
	if err != nil {
		return err
	}
	u.UpdatedAt = now
	return nil
}

func (db *DB) DeactivateUser(ctx context.Context, id string) error {
	return db.execUser(ctx, `UPDATE users SET is_active = 0, updated_at = ? WHERE id = ?`, time.Now(), id)
}

func (db *DB) execUser(ctx context.Context, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (db *DB) CreateSession(ctx context.Context, s *models.Session) error {
	now := time.Now()
	_, err := db.ExecContext(ctx, `INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.TokenHash, s.ExpiresAt, now)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	s.CreatedAt = now
	return nil
}

func (db *DB) GetSessionByHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	var s models.Session
	err := db.QueryRowContext(ctx, `SELECT id, user_id, token_hash, expires_at, created_at FROM sessions WHERE token_hash = ?`,
		tokenHash).Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("Session")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

func (db *DB) DeleteSession(ctx context.Context, id string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (db *DB) DeleteUserSessions(ctx context.Context, userID string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}
