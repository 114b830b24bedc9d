package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"comer/internal/domain"
	"comer/internal/id"
	"comer/internal/models"

	"github.com/rs/zerolog"
)

type CommentService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewCommentService(repo domain.Repository, logger *zerolog.Logger) *CommentService {
	return &CommentService{repo: repo, logger: logger}
}

func (s *CommentService) List(ctx context.Context, experienceID string) ([]*models.Comment, error) {
	return s.repo.ListCommentsByExperience(ctx, experienceID)
}

func (s *CommentService) ListByUser(ctx context.Context, userID string) ([]*models.Comment, error) {
	return s.repo.ListCommentsByUser(ctx, userID)
}

func (s *CommentService) Create(ctx context.Context, userID string, req models.CommentRequest) (*models.Comment, error) {
	if userID == "" {
		return nil, domain.Unauthorized("")
	}

	text := strings.TrimSpace(req.Description)
	if n := utf8.RuneCountInString(text); n == 0 || n > models.CommentMaxLength {
		return nil, domain.ValidationWithDetails("ValidationError", map[string]string{
			"description": "must be between 1 and 500 characters",
		})
	}

	if _, err := s.repo.GetExperience(ctx, req.ExperienceID); err != nil {
		return nil, err
	}

	commentID, err := id.Generate(id.PrefixComment)
	if err != nil {
		return nil, domain.Internal("failed to create comment", err)
	}

	c := &models.Comment{
		ID:           commentID,
		UserID:       userID,
		ExperienceID: req.ExperienceID,
		Description:  text,
		Likes:        []string{},
		Dislikes:     []string{},
	}
	if err := s.repo.CreateComment(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a comment written by userID.
func (s *CommentService) Delete(ctx context.Context, userID, commentID string) error {
	c, err := s.repo.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if c.UserID != userID {
		return domain.Forbidden("only the author can delete the comment")
	}
	if err := s.repo.DeleteComment(ctx, commentID); err != nil {
		return err
	}
	s.logger.Debug().Str("comment_id", commentID).Msg("Comment deleted")
	return nil
}

// ToggleReaction flips a like or dislike of userID on a comment.
func (s *CommentService) ToggleReaction(ctx context.Context, userID, commentID, kind string) (models.ToggleResult, error) {
	if userID == "" {
		return models.ToggleResult{}, domain.Unauthorized("")
	}
	if kind != models.ReactionLike && kind != models.ReactionDislike {
		return models.ToggleResult{}, domain.Validationf("unknown reaction %q", kind)
	}
	return s.repo.ToggleCommentReaction(ctx, commentID, userID, kind)
}
