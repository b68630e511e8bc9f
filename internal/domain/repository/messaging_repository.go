package repository

import (
	"context"
	"time"

	"prbal/internal/domain/entity"
)

// ThreadFilter narrows thread listing. Ordering accepts "updated_at",
// "-updated_at", "created_at" and "-created_at"; empty means "-updated_at".
type ThreadFilter struct {
	ThreadType string
	Ordering   string
}

// ThreadPatch is a partial update of a thread's mutable fields. Nil fields
// are left untouched. Participant membership is immutable and has no patch.
type ThreadPatch struct {
	ThreadType *string
	BidID      *string
	BookingID  *string
}

// MessagingRepository is the durable store for threads, messages and read
// receipts. Implementations must keep a message create atomic with the owning
// thread's lastMessage/updatedAt update, and must cascade thread deletion to
// the thread's messages and receipts.
type MessagingRepository interface {
	// CreateThread persists a thread, and its initial message in the same
	// unit of work when initial is non-nil.
	CreateThread(ctx context.Context, thread *entity.Thread, initial *entity.Message) error
	GetThread(ctx context.Context, id string) (*entity.Thread, error)
	ListThreadsByUser(ctx context.Context, userID string, filter ThreadFilter, limit, offset int) ([]*entity.Thread, int64, error)
	UpdateThread(ctx context.Context, id string, patch ThreadPatch) (*entity.Thread, error)
	DeleteThread(ctx context.Context, id string) error

	CreateMessage(ctx context.Context, message *entity.Message) error
	GetMessage(ctx context.Context, id string) (*entity.Message, error)
	UpdateMessage(ctx context.Context, message *entity.Message) error
	DeleteMessage(ctx context.Context, id string) error
	// ListMessages returns the thread's messages ordered by createdAt
	// ascending; when since is non-zero only messages created strictly
	// after it are returned.
	ListMessages(ctx context.Context, threadID string, since time.Time) ([]*entity.Message, error)
	// FindMessageByClientID resolves an idempotency key to a previously
	// persisted message created within the window, or NOT_FOUND.
	FindMessageByClientID(ctx context.Context, threadID, clientMessageID string, window time.Duration) (*entity.Message, error)

	// CreateReadReceipt is idempotent: a receipt that already exists is a
	// no-op, not an error.
	CreateReadReceipt(ctx context.Context, receipt *entity.ReadReceipt) error
	HasReadReceipt(ctx context.Context, messageID, userID string) (bool, error)
	ListReceiptsByMessage(ctx context.Context, messageID string) ([]*entity.ReadReceipt, error)
	// ListUnreadMessages returns the thread's messages not authored by
	// userID and carrying no receipt for userID.
	ListUnreadMessages(ctx context.Context, threadID, userID string) ([]*entity.Message, error)
	CountUnread(ctx context.Context, threadID, userID string) (int, error)
	// CountUnreadByThread returns unread counts keyed by thread id across
	// every thread userID participates in.
	CountUnreadByThread(ctx context.Context, userID string) (map[string]int, error)
}
