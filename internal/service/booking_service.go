package service

import (
	"context"
	"errors"
	"time"

	"comer/internal/config"
	"comer/internal/domain"
	"comer/internal/events"
	"comer/internal/ledger"
	"comer/internal/metrics"
	"comer/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingService runs reserve, cancel and availability changes against a
// ledger and fans the results out to the cache, the event bus and the
// sheets worker. The ledger transaction is the only thing that can fail the
// call; everything after commit is best effort.
type BookingService struct {
	repo         domain.Repository
	cache        domain.LedgerCache
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	cfg          config.BookingConfig
	cacheTTL     time.Duration
	logger       *zerolog.Logger
}

func NewBookingService(
	repo domain.Repository,
	cache domain.LedgerCache,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	cfg config.BookingConfig,
	cacheTTL time.Duration,
	logger *zerolog.Logger,
) *BookingService {
	return &BookingService{
		repo:         repo,
		cache:        cache,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		cfg:          cfg,
		cacheTTL:     cacheTTL,
		logger:       logger,
	}
}

// Reserve books one place on a slot for req.UserID.
func (s *BookingService) Reserve(ctx context.Context, req models.ReserveRequest) (*models.Booking, error) {
	if req.UserID == "" {
		return nil, domain.Unauthorized("")
	}
	if err := s.checkRateLimit(ctx, "reserve:"+req.UserID); err != nil {
		metrics.IncBooking("reserve", string(domain.CodeOf(err)))
		return nil, err
	}

	started := time.Now()
	booking, err := s.repo.ReserveSlot(ctx, req, uuid.NewString())
	metrics.ObserveReserve(time.Since(started))
	if err != nil {
		metrics.IncBooking("reserve", string(domain.CodeOf(err)))
		return nil, err
	}
	metrics.IncBooking("reserve", "ok")

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("experience_id", booking.ExperienceID).
		Str("slot_id", booking.SlotID).
		Str("user_id", booking.UserID).
		Msg("Slot reserved")

	s.invalidate(ctx, booking.ExperienceID)
	s.publishBooking(ctx, events.EventBookingReserved, booking)
	s.enqueueSync(ctx, models.SyncTaskUpsert, booking)

	return booking, nil
}

// Cancel removes a booking owned by userID and returns its place to the slot.
func (s *BookingService) Cancel(ctx context.Context, bookingID, userID string) (*models.Booking, error) {
	if userID == "" {
		return nil, domain.Unauthorized("")
	}

	booking, err := s.repo.CancelBooking(ctx, bookingID, userID)
	if err != nil {
		metrics.IncBooking("cancel", string(domain.CodeOf(err)))
		return nil, err
	}
	metrics.IncBooking("cancel", "ok")

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("experience_id", booking.ExperienceID).
		Str("user_id", userID).
		Msg("Booking cancelled")

	s.invalidate(ctx, booking.ExperienceID)
	s.publishBooking(ctx, events.EventBookingCancelled, booking)
	s.enqueueSync(ctx, models.SyncTaskDelete, booking)

	return booking, nil
}

// Availability returns the ledger of an experience, served from the cache when possible.
func (s *BookingService) Availability(ctx context.Context, experienceID string) (*models.Ledger, error) {
	if s.cache != nil {
		cached, err := s.cache.GetLedger(ctx, experienceID)
		if err != nil {
			s.logger.Warn().Err(err).Str("experience_id", experienceID).Msg("ledger cache read failed")
		}
		if cached != nil {
			return cached, nil
		}
	}

	l, err := s.repo.GetLedger(ctx, experienceID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetLedger(ctx, l, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Str("experience_id", experienceID).Msg("ledger cache write failed")
		}
	}
	return l, nil
}

// BookedByUser lists the ledgers holding bookings of userID. Callers may only list their own.
func (s *BookingService) BookedByUser(ctx context.Context, callerID, userID string) ([]models.UserLedger, error) {
	if callerID == "" {
		return nil, domain.Unauthorized("")
	}
	if callerID != userID {
		return nil, domain.Forbidden("")
	}
	return s.repo.ListUserLedgers(ctx, userID)
}

// Booking returns one booking visible to its owner.
func (s *BookingService) Booking(ctx context.Context, callerID, bookingID string) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != callerID {
		return nil, domain.Forbidden("")
	}
	return b, nil
}

// RedefineAvailability replaces the schedule of an experience owned by callerID.
// Surviving dates keep their slots; see ledger.PlanRedefinition.
func (s *BookingService) RedefineAvailability(ctx context.Context, callerID, experienceID string, w models.Window) (*models.Ledger, error) {
	exp, err := s.repo.GetExperience(ctx, experienceID)
	if err != nil {
		return nil, err
	}
	if !exp.IsOwnedBy(callerID) {
		return nil, domain.Forbidden("only the owner can change availability")
	}
	if err := s.checkGuestLimit(w.MaxGuest); err != nil {
		return nil, err
	}

	slots, runningTime, err := ledger.Expand(w)
	if err != nil {
		return nil, err
	}

	l, err := s.repo.RedefineAvailability(ctx, experienceID, w, runningTime, slots)
	if err != nil {
		metrics.IncBooking("redefine", string(domain.CodeOf(err)))
		return nil, err
	}
	metrics.IncBooking("redefine", "ok")

	s.invalidate(ctx, experienceID)
	s.publish(events.EventAvailabilityRedefined, events.AvailabilityEventPayload{
		ExperienceID: experienceID,
		Version:      l.Version,
		StartDate:    w.StartDate,
		EndDate:      w.EndDate,
		Slots:        len(l.Slots),
	})
	return l, nil
}

// DropBookings mirrors bookings removed together with their experience.
func (s *BookingService) DropBookings(ctx context.Context, bookings []models.Booking) {
	for i := range bookings {
		s.enqueueSync(ctx, models.SyncTaskDelete, &bookings[i])
	}
}

func (s *BookingService) checkGuestLimit(maxGuest int) error {
	if s.cfg.MaxGuestLimit > 0 && maxGuest > s.cfg.MaxGuestLimit {
		return domain.ValidationWithDetails("ValidationError", map[string]string{
			"maxGuest": "must not exceed the platform limit",
		})
	}
	return nil
}

// checkRateLimit fails open: a broken limiter never blocks bookings.
func (s *BookingService) checkRateLimit(ctx context.Context, key string) error {
	if s.cache == nil || s.cfg.ReserveLimit <= 0 {
		return nil
	}
	allowed, err := s.cache.CheckRateLimit(ctx, key, s.cfg.ReserveLimit, s.cfg.ReserveWindow)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("rate limit check failed")
		return nil
	}
	if !allowed {
		return domain.ErrRateLimited
	}
	return nil
}

func (s *BookingService) invalidate(ctx context.Context, experienceID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateLedger(ctx, experienceID); err != nil {
		s.logger.Warn().Err(err).Str("experience_id", experienceID).Msg("ledger cache invalidation failed")
	}
}

func (s *BookingService) publishBooking(ctx context.Context, eventType string, booking *models.Booking) {
	payload := events.BookingEventPayload{
		BookingID:    booking.ID,
		ExperienceID: booking.ExperienceID,
		SlotID:       booking.SlotID,
		UserID:       booking.UserID,
		UserEmail:    booking.UserEmail,
		Date:         booking.Date,
		StartTime:    booking.StartTime,
		EndTime:      booking.EndTime,
		Price:        booking.Price,
		Currency:     booking.Currency,
	}

	exp, err := s.repo.GetExperience(ctx, booking.ExperienceID)
	switch {
	case err == nil:
		payload.ExperienceTitle = exp.Title
		payload.OwnerID = exp.OwnerID
	case !errors.Is(err, domain.ErrExperienceNotFound):
		s.logger.Warn().Err(err).Str("experience_id", booking.ExperienceID).Msg("experience lookup for event failed")
	}

	s.publish(eventType, payload)
}

func (s *BookingService) publish(eventType string, payload any) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, taskType string, booking *models.Booking) {
	if s.sheetsWorker == nil {
		return
	}
	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, booking); err != nil {
		s.logger.Error().Err(err).Str("booking_id", booking.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}
