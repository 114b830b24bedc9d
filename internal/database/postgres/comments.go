package postgres

import (
	"context"
	"fmt"
	"time"

	"comer/internal/domain"
	"comer/internal/models"

	"github.com/jackc/pgx/v5"
)

const commentColumns = `c.id, c.user_id, c.experience_id, c.description, c.created_at, c.updated_at,
    COALESCE((SELECT array_agg(r.user_id ORDER BY r.created_at) FROM comment_reactions r WHERE r.comment_id = c.id AND r.kind = 'like'), '{}'),
    COALESCE((SELECT array_agg(r.user_id ORDER BY r.created_at) FROM comment_reactions r WHERE r.comment_id = c.id AND r.kind = 'dislike'), '{}')`

func (s *Store) CreateComment(ctx context.Context, c *models.Comment) error {
	now := time.Now()
	_, err := s.pool.Exec(ctx, `INSERT INTO comments (id, user_id, experience_id, description, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $5)`, c.ID, c.UserID, c.ExperienceID, c.Description, now)
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	c.CreatedAt, c.UpdatedAt = now, now
	c.Likes, c.Dislikes = []string{}, []string{}
	return nil
}

func (s *Store) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	comments, err := s.queryComments(ctx, `SELECT `+commentColumns+` FROM comments c WHERE c.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, domain.ErrCommentNotFound
	}
	return comments[0], nil
}

func (s *Store) ListCommentsByExperience(ctx context.Context, experienceID string) ([]*models.Comment, error) {
	return s.queryComments(ctx, `SELECT `+commentColumns+` FROM comments c WHERE c.experience_id = $1 ORDER BY c.created_at DESC`, experienceID)
}

func (s *Store) ListCommentsByUser(ctx context.Context, userID string) ([]*models.Comment, error) {
	return s.queryComments(ctx, `SELECT `+commentColumns+` FROM comments c WHERE c.user_id = $1 ORDER BY c.created_at DESC`, userID)
}

func (s *Store) queryComments(ctx context.Context, query string, args ...any) ([]*models.Comment, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var out []*models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.UserID, &c.ExperienceID, &c.Description, &c.CreatedAt, &c.UpdatedAt, &c.Likes, &c.Dislikes); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	return out, nil
}

// DeleteComment removes the comment; its reactions cascade.
func (s *Store) DeleteComment(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCommentNotFound
	}
	return nil
}

// ToggleCommentReaction flips kind for userID. Adding one kind removes the opposite one.
func (s *Store) ToggleCommentReaction(ctx context.Context, commentID, userID, kind string) (models.ToggleResult, error) {
	opposite := models.ReactionDislike
	if kind == models.ReactionDislike {
		opposite = models.ReactionLike
	}

	var res models.ToggleResult
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		found, err := exists(ctx, tx, `SELECT 1 FROM comments WHERE id = $1 FOR UPDATE`, commentID)
		if err != nil {
			return fmt.Errorf("failed to check comment: %w", err)
		}
		if !found {
			return domain.ErrCommentNotFound
		}

		tag, err := tx.Exec(ctx, `DELETE FROM comment_reactions WHERE comment_id = $1 AND user_id = $2 AND kind = $3`,
			commentID, userID, kind)
		if err != nil {
			return fmt.Errorf("failed to remove reaction: %w", err)
		}
		res.Active = tag.RowsAffected() == 0
		if res.Active {
			if _, err := tx.Exec(ctx, `DELETE FROM comment_reactions WHERE comment_id = $1 AND user_id = $2 AND kind = $3`,
				commentID, userID, opposite); err != nil {
				return fmt.Errorf("failed to remove opposite reaction: %w", err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO comment_reactions (comment_id, user_id, kind) VALUES ($1, $2, $3)`,
				commentID, userID, kind); err != nil {
				return fmt.Errorf("failed to add reaction: %w", err)
			}
		}

		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM comment_reactions WHERE comment_id = $1 AND kind = $2`,
			commentID, kind).Scan(&res.Count); err != nil {
			return fmt.Errorf("failed to count reactions: %w", err)
		}
		return nil
	})
	return res, err
}
