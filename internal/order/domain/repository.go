package domain

import (
	"context"
	"time"

	"github.com/carebridge/platform/internal/shared/types"
)

// ListFilter narrows order listings. The created-at bounds are
// inclusive on both ends; Medication matches as a case-insensitive
// substring.
type ListFilter struct {
	Status      *ApprovalStatus
	MRN         string
	Search      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Medication  string
	OrderBy     string
	OrderDesc   bool
	Limit       int
	Offset      int
}

// Active reports whether any export filter field is set
func (f ListFilter) Active() bool {
	return f.CreatedFrom != nil || f.CreatedTo != nil || f.Medication != ""
}

// Repository is the persistence surface for orders. Create runs the
// whole write (order insert plus patient and provider upserts) in one
// transaction; when allowExisting is false it re-checks for an exact
// duplicate under an advisory lock and refuses to insert a second copy.
type Repository interface {
	OrderFinder

	Create(ctx context.Context, o *Order, allowExisting bool) error
	FindByID(ctx context.Context, id types.ID) (*Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int, error)
	UpdateContent(ctx context.Context, o *Order) error
	UpdateReview(ctx context.Context, o *Order) error
}
