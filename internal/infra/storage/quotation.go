package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/quotation/internal/core/domain"
)

// ErrDuplicateCode is returned when a quotation code is already taken
var ErrDuplicateCode = errors.New("quotation code already exists")

// QuotationRepository handles quotation storage operations
type QuotationRepository interface {
	// Create stores a new quotation; ErrDuplicateCode if the code exists
	Create(ctx context.Context, q domain.Quotation) (domain.Quotation, error)

	// GetByCode retrieves a quotation, nil if it does not exist
	GetByCode(ctx context.Context, code string) (*domain.Quotation, error)
}

// ExpiredQuotationPruner is implemented by stores that keep expired
// quotations until told to delete them.
type ExpiredQuotationPruner interface {
	// DeleteExpiredBefore removes quotations whose expiry time is before t
	DeleteExpiredBefore(ctx context.Context, t time.Time) (int64, error)
}
