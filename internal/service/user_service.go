package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"comer/internal/auth"
	"comer/internal/domain"
	"comer/internal/events"
	"comer/internal/id"
	"comer/internal/models"
	"comer/internal/validation"

	"github.com/rs/zerolog"
)

// Session is what a successful login or refresh hands back to the transport.
type Session struct {
	User             *models.User
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type UserService struct {
	repo      domain.Repository
	tokens    *auth.TokenService
	store     domain.ObjectStore
	eventBus  domain.EventPublisher
	validator *validation.Validator
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewUserService(
	repo domain.Repository,
	tokens *auth.TokenService,
	store domain.ObjectStore,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) *UserService {
	return &UserService{
		repo:      repo,
		tokens:    tokens,
		store:     store,
		eventBus:  eventBus,
		validator: validation.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// Signup creates an inactive account and publishes its verification token.
func (s *UserService) Signup(ctx context.Context, req models.SignupRequest) (*models.User, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, domain.Internal("failed to create user", err)
	}
	emailToken, err := auth.GenerateEmailToken()
	if err != nil {
		return nil, domain.Internal("failed to create user", err)
	}
	userID, err := id.Generate(id.PrefixUser)
	if err != nil {
		return nil, domain.Internal("failed to create user", err)
	}

	u := &models.User{
		ID:           userID,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		EmailToken:   emailToken,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", u.ID).Msg("User registered")
	s.publish(events.EventUserRegistered, events.UserRegisteredPayload{
		UserID:     u.ID,
		Email:      u.Email,
		EmailToken: emailToken,
	})
	return u, nil
}

func (s *UserService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	u, err := s.repo.GetUserByEmailToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.repo.VerifyUser(ctx, u.ID); err != nil {
		return nil, err
	}
	return s.repo.GetUserByID(ctx, u.ID)
}

func (s *UserService) Login(ctx context.Context, req models.LoginRequest) (*Session, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	u, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if !auth.VerifyPassword(u.PasswordHash, req.Password) {
		return nil, domain.Forbidden("Wrong credentials")
	}
	if !u.IsVerified {
		return nil, domain.Forbidden("Email is not verified")
	}
	if !u.IsActive {
		return nil, domain.Forbidden("Account is deactivated")
	}

	return s.openSession(ctx, u)
}

// Refresh rotates a refresh token. The presented token is consumed even when
// the account can no longer log in.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, domain.Unauthorized("")
	}

	sess, err := s.repo.GetSessionByHash(ctx, auth.HashToken(refreshToken))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Unauthorized("Invalid refresh token")
	}
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteSession(ctx, sess.ID); err != nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		return nil, domain.Unauthorized("Refresh token expired")
	}

	u, err := s.repo.GetUserByID(ctx, sess.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.Unauthorized("")
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, domain.Unauthorized("Account is deactivated")
	}

	return s.openSession(ctx, u)
}

// Logout drops the session behind refreshToken. Unknown tokens are ignored.
func (s *UserService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	sess, err := s.repo.GetSessionByHash(ctx, auth.HashToken(refreshToken))
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.repo.DeleteSession(ctx, sess.ID)
}

func (s *UserService) Get(ctx context.Context, callerID, userID string) (*models.User, error) {
	if err := requireSelf(callerID, userID); err != nil {
		return nil, err
	}
	return s.repo.GetUserByID(ctx, userID)
}

// Update writes profile fields and, when picture is set, replaces the profile picture.
func (s *UserService) Update(ctx context.Context, callerID, userID string, p models.ProfileUpdate, picture *Upload) (*models.User, error) {
	if err := requireSelf(callerID, userID); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(p); err != nil {
		return nil, err
	}

	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	previous := u.ProfilePicture
	if picture != nil {
		if s.store == nil {
			return nil, domain.Validation("file uploads are not enabled")
		}
		ref, err := s.store.Put(ctx, picture.Name, picture.Data)
		if err != nil {
			return nil, err
		}
		u.ProfilePicture = ref
	}

	p.ApplyTo(u)
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		if picture != nil {
			s.removeUpload(ctx, u.ProfilePicture)
		}
		return nil, err
	}

	if picture != nil && previous != "" {
		s.removeUpload(ctx, previous)
	}
	return u, nil
}

// Delete deactivates the account and ends all of its sessions.
func (s *UserService) Delete(ctx context.Context, callerID, userID string) error {
	if err := requireSelf(callerID, userID); err != nil {
		return err
	}
	if err := s.repo.DeactivateUser(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.DeleteUserSessions(ctx, userID); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID).Msg("User deactivated")
	return nil
}

func (s *UserService) openSession(ctx context.Context, u *models.User) (*Session, error) {
	access, err := s.tokens.GenerateAccessToken(u.ID, u.Email)
	if err != nil {
		return nil, domain.Internal("failed to issue token", err)
	}
	refresh, err := s.tokens.GenerateRefreshToken()
	if err != nil {
		return nil, domain.Internal("failed to issue token", err)
	}
	sessionID, err := id.Generate(id.PrefixSession)
	if err != nil {
		return nil, domain.Internal("failed to issue token", err)
	}

	sess := &models.Session{
		ID:        sessionID,
		UserID:    u.ID,
		TokenHash: auth.HashToken(refresh),
		ExpiresAt: s.now().Add(s.tokens.RefreshTTL()),
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	return &Session{
		User:             u,
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshExpiresAt: sess.ExpiresAt,
	}, nil
}

func (s *UserService) removeUpload(ctx context.Context, ref string) {
	if s.store == nil {
		return
	}
	if err := s.store.Delete(ctx, ref); err != nil {
		s.logger.Warn().Err(err).Str("ref", ref).Msg("failed to remove upload")
	}
}

func (s *UserService) publish(eventType string, payload any) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

func requireSelf(callerID, userID string) error {
	if callerID == "" {
		return domain.Unauthorized("")
	}
	if callerID != userID {
		return domain.Forbidden("")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
