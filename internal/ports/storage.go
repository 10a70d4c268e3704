package ports

import (
	"context"

	"github.com/tomtat/tomtat/internal/domain"
)

// HistoryStore persists summarization history and feedback.
// Lookups of a missing record return domain.ErrNotFound.
type HistoryStore interface {
	Insert(ctx context.Context, rec domain.HistoryRecord) error
	Get(ctx context.Context, id string) (domain.HistoryRecord, error)

	// List returns one page of records matching filter, newest first, and
	// the total number of matches.
	List(ctx context.Context, filter domain.HistoryFilter, page, pageSize int) ([]domain.HistoryRecord, int, error)

	SetFeedback(ctx context.Context, id string, fb domain.Feedback) error

	// ListBadFeedback returns up to limit records rated bad, most recently
	// rated first. Empty userID or model match any value.
	ListBadFeedback(ctx context.Context, userID, model string, limit int) ([]domain.HistoryRecord, error)

	// Delete removes records by id that belong to userID and reports how
	// many were removed. An empty userID matches any owner.
	Delete(ctx context.Context, userID string, ids ...string) (int, error)
	DeleteMatching(ctx context.Context, filter domain.HistoryFilter) (int, error)

	Stats(ctx context.Context, userID string) (domain.Analytics, error)
}

// UserStore persists accounts. Duplicate emails return domain.ErrConflict.
type UserStore interface {
	Create(ctx context.Context, u domain.User) error
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, id string) (domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	Delete(ctx context.Context, id string) error
}
