package service

import (
	"context"
	"errors"

	"comer/internal/config"
	"comer/internal/domain"
	"comer/internal/events"
	"comer/internal/id"
	"comer/internal/ledger"
	"comer/internal/models"
	"comer/internal/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Upload is one file received with an experience or profile form.
type Upload struct {
	Name string
	Data []byte
}

// ExperienceView is an experience together with its owner's public profile.
type ExperienceView struct {
	*models.Experience
	Owner *models.PublicProfile `json:"owner,omitempty"`
}

type ExperienceService struct {
	repo      domain.Repository
	bookings  *BookingService
	store     domain.ObjectStore
	eventBus  domain.EventPublisher
	validator *validation.Validator
	clock     domain.Clock
	cfg       config.BookingConfig
	maxFiles  int
	logger    *zerolog.Logger
}

func NewExperienceService(
	repo domain.Repository,
	bookings *BookingService,
	store domain.ObjectStore,
	eventBus domain.EventPublisher,
	clock domain.Clock,
	cfg config.BookingConfig,
	maxFiles int,
	logger *zerolog.Logger,
) *ExperienceService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &ExperienceService{
		repo:      repo,
		bookings:  bookings,
		store:     store,
		eventBus:  eventBus,
		validator: validation.New(),
		clock:     clock,
		cfg:       cfg,
		maxFiles:  maxFiles,
		logger:    logger,
	}
}

// Create stores a new experience and its ledger. The window is expanded
// before any upload is written so that an invalid schedule leaves nothing behind.
func (s *ExperienceService) Create(ctx context.Context, ownerID string, in models.ExperienceInput, uploads []Upload) (*models.Experience, error) {
	if ownerID == "" {
		return nil, domain.Unauthorized("")
	}
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}
	if s.maxFiles > 0 && len(uploads) > s.maxFiles {
		return nil, domain.Validationf("at most %d files are allowed", s.maxFiles)
	}

	w := in.Window()
	if err := s.bookings.checkGuestLimit(w.MaxGuest); err != nil {
		return nil, err
	}
	slots, runningTime, err := ledger.Expand(w)
	if err != nil {
		return nil, err
	}

	expID, err := id.Generate(id.PrefixExperience)
	if err != nil {
		return nil, domain.Internal("failed to create experience", err)
	}

	files, err := s.storeUploads(ctx, uploads)
	if err != nil {
		return nil, err
	}

	exp := &models.Experience{ID: expID, OwnerID: ownerID, Files: files}
	in.ApplyTo(exp)
	exp.ApplyWindow(w, runningTime)

	l := &models.Ledger{ID: uuid.NewString(), Slots: slots}
	if err := s.repo.CreateExperience(ctx, exp, l); err != nil {
		s.removeUploads(ctx, files)
		return nil, err
	}

	s.logger.Info().
		Str("experience_id", exp.ID).
		Str("owner_id", ownerID).
		Int("slots", len(slots)).
		Msg("Experience created")

	s.publish(events.EventExperienceCreated, events.ExperienceEventPayload{
		ExperienceID: exp.ID,
		OwnerID:      ownerID,
		Title:        exp.Title,
		Slots:        len(slots),
	})
	return exp, nil
}

func (s *ExperienceService) Get(ctx context.Context, experienceID string) (*ExperienceView, error) {
	exp, err := s.repo.GetExperience(ctx, experienceID)
	if err != nil {
		return nil, err
	}

	view := &ExperienceView{Experience: exp}
	owner, err := s.repo.GetUserByID(ctx, exp.OwnerID)
	switch {
	case err == nil:
		p := owner.Public()
		view.Owner = &p
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, err
	}
	return view, nil
}

func (s *ExperienceService) ListByOwner(ctx context.Context, ownerID string) ([]*models.Experience, error) {
	return s.repo.ListExperiencesByOwner(ctx, ownerID)
}

// Sample returns a random selection of experiences that have not ended yet.
func (s *ExperienceService) Sample(ctx context.Context) ([]*models.Experience, error) {
	return s.repo.SampleExperiences(ctx, s.clock.Today(), s.cfg.RandomSampleSize)
}

func (s *ExperienceService) ByTags(ctx context.Context, tags []string) ([]*models.Experience, error) {
	tags = models.NormalizeTags(tags)
	if len(tags) == 0 {
		return nil, domain.Validation("at least one tag is required")
	}
	return s.repo.SearchExperiences(ctx, models.ExperienceQuery{Tags: tags, Limit: models.DefaultTagsLimit})
}

func (s *ExperienceService) Search(ctx context.Context, q models.ExperienceQuery) ([]*models.Experience, error) {
	if q.StartDate != nil && q.EndDate != nil && q.EndDate.Before(*q.StartDate) {
		return nil, domain.Validation("endDate must not be before startDate")
	}
	return s.repo.SearchExperiences(ctx, q)
}

// Update rewrites the descriptive fields. A changed schedule goes through
// availability redefinition first, so a rejected window leaves the experience untouched.
func (s *ExperienceService) Update(ctx context.Context, callerID, experienceID string, in models.ExperienceInput) (*models.Experience, error) {
	exp, err := s.repo.GetExperience(ctx, experienceID)
	if err != nil {
		return nil, err
	}
	if !exp.IsOwnedBy(callerID) {
		return nil, domain.Forbidden("only the owner can update the experience")
	}
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}

	if w := in.Window(); w != exp.Window() {
		if _, err := s.bookings.RedefineAvailability(ctx, callerID, experienceID, w); err != nil {
			return nil, err
		}
		runningTime, err := ledger.RunningTime(w.StartTime, w.EndTime)
		if err != nil {
			return nil, err
		}
		exp.ApplyWindow(w, runningTime)
	}

	in.ApplyTo(exp)
	if err := s.repo.UpdateExperience(ctx, exp); err != nil {
		return nil, err
	}
	return exp, nil
}

// Delete removes the experience with its ledger. Dropped bookings are
// reported in the event and removed from the sheets mirror.
func (s *ExperienceService) Delete(ctx context.Context, callerID, experienceID string) error {
	exp, err := s.repo.GetExperience(ctx, experienceID)
	if err != nil {
		return err
	}
	if !exp.IsOwnedBy(callerID) {
		return domain.Forbidden("only the owner can delete the experience")
	}

	dropped, err := s.repo.DeleteExperience(ctx, experienceID)
	if err != nil {
		return err
	}

	s.bookings.invalidate(ctx, experienceID)
	s.bookings.DropBookings(ctx, dropped)
	s.removeUploads(ctx, exp.Files)

	ids := make([]string, 0, len(dropped))
	for _, b := range dropped {
		ids = append(ids, b.ID)
	}
	s.logger.Info().
		Str("experience_id", experienceID).
		Int("dropped_bookings", len(ids)).
		Msg("Experience deleted")

	s.publish(events.EventExperienceDeleted, events.ExperienceEventPayload{
		ExperienceID:    experienceID,
		OwnerID:         exp.OwnerID,
		Title:           exp.Title,
		DroppedBookings: ids,
	})
	return nil
}

func (s *ExperienceService) ToggleLike(ctx context.Context, userID, experienceID string) (models.ToggleResult, error) {
	if userID == "" {
		return models.ToggleResult{}, domain.Unauthorized("")
	}
	return s.repo.ToggleExperienceLike(ctx, experienceID, userID)
}

func (s *ExperienceService) storeUploads(ctx context.Context, uploads []Upload) ([]string, error) {
	if len(uploads) == 0 {
		return []string{}, nil
	}
	if s.store == nil {
		return nil, domain.Validation("file uploads are not enabled")
	}

	refs := make([]string, 0, len(uploads))
	for _, u := range uploads {
		ref, err := s.store.Put(ctx, u.Name, u.Data)
		if err != nil {
			s.removeUploads(ctx, refs)
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (s *ExperienceService) removeUploads(ctx context.Context, refs []string) {
	if s.store == nil {
		return
	}
	for _, ref := range refs {
		if err := s.store.Delete(ctx, ref); err != nil {
			s.logger.Warn().Err(err).Str("ref", ref).Msg("failed to remove upload")
		}
	}
}

func (s *ExperienceService) publish(eventType string, payload any) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
