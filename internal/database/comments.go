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

func (db *DB) CreateComment(ctx context.Context, c *models.Comment) error {
	now := time.Now()
	_, err := db.ExecContext(ctx, `INSERT INTO comments (id, user_id, experience_id, description, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)`, c.ID, c.UserID, c.ExperienceID, c.Description, now, now)
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	c.CreatedAt, c.UpdatedAt = now, now
	c.Likes, c.Dislikes = []string{}, []string{}
	return nil
}

func (db *DB) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	comments, err := db.queryComments(ctx, `SELECT id, user_id, experience_id, description, created_at, updated_at
        FROM comments WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, domain.ErrCommentNotFound
	}
	return comments[0], nil
}

func (db *DB) ListCommentsByExperience(ctx context.Context, experienceID string) ([]*models.Comment, error) {
	return db.queryComments(ctx, `SELECT id, user_id, experience_id, description, created_at, updated_at
        FROM comments WHERE experience_id = ? ORDER BY created_at DESC`, experienceID)
}

func (db *DB) ListCommentsByUser(ctx context.Context, userID string) ([]*models.Comment, error) {
	return db.queryComments(ctx, `SELECT id, user_id, experience_id, description, created_at, updated_at
        FROM comments WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

func (db *DB) queryComments(ctx context.Context, query string, args ...any) ([]*models.Comment, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var out []*models.Comment
	byID := map[string]*models.Comment{}
	for rows.Next() {
		c := &models.Comment{Likes: []string{}, Dislikes: []string{}}
		if err := rows.Scan(&c.ID, &c.UserID, &c.ExperienceID, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		out = append(out, c)
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	rows.Close()

	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(out))
	for _, c := range out {
		ids = append(ids, c.ID)
	}
	reactions, err := db.QueryContext(ctx, `SELECT comment_id, user_id, kind FROM comment_reactions
        WHERE comment_id IN (`+placeholders(len(ids))+`) ORDER BY created_at`, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reactions: %w", err)
	}
	defer reactions.Close()
	for reactions.Next() {
		var commentID, userID, kind string
		if err := reactions.Scan(&commentID, &userID, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan reaction: %w", err)
		}
		c := byID[commentID]
		switch kind {
		case models.ReactionLike:
			c.Likes = append(c.Likes, userID)
		case models.ReactionDislike:
			c.Dislikes = append(c.Dislikes, userID)
		}
	}
	return out, reactions.Err()
}

func (db *DB) DeleteComment(ctx context.Context, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrCommentNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM comment_reactions WHERE comment_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete reactions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit comment delete: %w", err)
	}
	return nil
}

// ToggleCommentReaction flips kind for userID. Adding one kind removes the opposite one.
func (db *DB) ToggleCommentReaction(ctx context.Context, commentID, userID, kind string) (models.ToggleResult, error) {
	opposite := models.ReactionDislike
	if kind == models.ReactionDislike {
		opposite = models.ReactionLike
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return models.ToggleResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM comments WHERE id = ?`, commentID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ToggleResult{}, domain.ErrCommentNotFound
	}
	if err != nil {
		return models.ToggleResult{}, fmt.Errorf("failed to check comment: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM comment_reactions WHERE comment_id = ? AND user_id = ? AND kind = ?`,
		commentID, userID, kind)
	if err != nil {
		return models.ToggleResult{}, fmt.Errorf("failed to remove reaction: %w", err)
	}
	removed, _ := res.RowsAffected()
	if removed == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM comment_reactions WHERE comment_id = ? AND user_id = ? AND kind = ?`,
			commentID, userID, opposite); err != nil {
			return models.ToggleResult{}, fmt.Errorf("failed to remove opposite reaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO comment_reactions (comment_id, user_id, kind, created_at) VALUES (?, ?, ?, ?)`,
			commentID, userID, kind, time.Now()); err != nil {
			return models.ToggleResult{}, fmt.Errorf("failed to add reaction: %w", err)
		}
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM comment_reactions WHERE comment_id = ? AND kind = ?`,
		commentID, kind).Scan(&count); err != nil {
		return models.ToggleResult{}, fmt.Errorf("failed to count reactions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.ToggleResult{}, fmt.Errorf("failed to commit reaction: %w", err)
	}
	return models.ToggleResult{Active: removed == 0, Count: count}, nil
}
