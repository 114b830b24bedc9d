package models

const (
	SyncStatusPending   = "pending"
	SyncStatusRetry     = "retry"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

const (
	SyncTaskUpsert = "upsert"
	SyncTaskDelete = "delete"
)

const (
	// CommentMaxLength is the maximum comment length after trimming.
	CommentMaxLength = 500

	// MaxUploadFiles limits images per experience.
	MaxUploadFiles = 5

	// DefaultRandomSampleSize is the size of the public landing sample.
	DefaultRandomSampleSize = 20

	// DefaultTagsLimit caps tag search results.
	DefaultTagsLimit = 20

	// DefaultReserveLimit is the number of reservations a user may attempt per window.
	DefaultReserveLimit = 10

	// DefaultMaxGuestLimit caps maxGuest on a single experience.
	DefaultMaxGuestLimit = 100

	// WorkerQueueSize is the in-memory sync queue capacity.
	WorkerQueueSize = 1000

	// DefaultLedgerCacheTTL in seconds.
	DefaultLedgerCacheTTL = 5 * 60

	// SheetsCacheTTL is how long a booking row index stays cached, in seconds.
	SheetsCacheTTL = 60 * 60
)
