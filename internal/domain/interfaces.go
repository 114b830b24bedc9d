package domain

import (
	"context"
	"time"

	"comer/internal/models"

	"cloud.google.com/go/civil"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type ExperienceRepository interface {
	// CreateExperience stores the experience and its ledger in one transaction.
	CreateExperience(ctx context.Context, exp *models.Experience, ledger *models.Ledger) error
	GetExperience(ctx context.Context, id string) (*models.Experience, error)
	UpdateExperience(ctx context.Context, exp *models.Experience) error
	// DeleteExperience removes the experience with its ledger and returns the dropped bookings.
	DeleteExperience(ctx context.Context, id string) ([]models.Booking, error)
	ListExperiencesByOwner(ctx context.Context, ownerID string) ([]*models.Experience, error)
	SampleExperiences(ctx context.Context, activeOn civil.Date, limit int) ([]*models.Experience, error)
	SearchExperiences(ctx context.Context, q models.ExperienceQuery) ([]*models.Experience, error)
	ToggleExperienceLike(ctx context.Context, experienceID, userID string) (models.ToggleResult, error)
}

type LedgerRepository interface {
	GetLedger(ctx context.Context, experienceID string) (*models.Ledger, error)
	// RedefineAvailability migrates the slot set to the expanded window and
	// updates the experience schedule fields atomically.
	RedefineAvailability(ctx context.Context, experienceID string, w models.Window, runningTime int, slots []models.Slot) (*models.Ledger, error)
	ReserveSlot(ctx context.Context, req models.ReserveRequest, bookingID string) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID, userID string) (*models.Booking, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListUserLedgers(ctx context.Context, userID string) ([]models.UserLedger, error)
}

type CommentRepository interface {
	CreateComment(ctx context.Context, c *models.Comment) error
	GetComment(ctx context.Context, id string) (*models.Comment, error)
	ListCommentsByExperience(ctx context.Context, experienceID string) ([]*models.Comment, error)
	ListCommentsByUser(ctx context.Context, userID string) ([]*models.Comment, error)
	DeleteComment(ctx context.Context, id string) error
	ToggleCommentReaction(ctx context.Context, commentID, userID, kind string) (models.ToggleResult, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByEmailToken(ctx context.Context, token string) (*models.User, error)
	VerifyUser(ctx context.Context, id string) error
	UpdateUser(ctx context.Context, u *models.User) error
	DeactivateUser(ctx context.Context, id string) error
	CreateSession(ctx context.Context, s *models.Session) error
	GetSessionByHash(ctx context.Context, tokenHash string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID string) error
}

type SyncQueueRepository interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error)
}

// Repository is the full storage surface implemented by the sqlite and postgres stores.
type Repository interface {
	ExperienceRepository
	LedgerRepository
	CommentRepository
	UserRepository
	SyncQueueRepository
	PingContext(ctx context.Context) error
	Close() error
}

// LedgerCache keeps read copies of ledgers. Writers invalidate after commit.
type LedgerCache interface {
	GetLedger(ctx context.Context, experienceID string) (*models.Ledger, error)
	SetLedger(ctx context.Context, ledger *models.Ledger, ttl time.Duration) error
	InvalidateLedger(ctx context.Context, experienceID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	DeleteBookingRow(ctx context.Context, bookingID string) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error
}

// ObjectStore accepts uploaded files and returns a retrievable reference.
type ObjectStore interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
	Delete(ctx context.Context, ref string) error
}

// Clock abstracts "today" so catalog queries are testable.
type Clock interface {
	Today() civil.Date
}
