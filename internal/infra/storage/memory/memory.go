package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/quotation/internal/core/domain"
	"github.com/vietddude/quotation/internal/infra/storage"
)

// QuotationRepo keeps quotations in process memory. Suitable for tests and
// single-instance runs; contents are lost on restart.
type QuotationRepo struct {
	quotations map[string]domain.Quotation
	mu         sync.RWMutex
}

func NewQuotationRepo() *QuotationRepo {
	return &QuotationRepo{
		quotations: make(map[string]domain.Quotation),
	}
}

func (r *QuotationRepo) Create(ctx context.Context, q domain.Quotation) (domain.Quotation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quotation{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quotations[q.Code]; ok {
		return domain.Quotation{}, storage.ErrDuplicateCode
	}
	r.quotations[q.Code] = q
	return q, nil
}

func (r *QuotationRepo) GetByCode(ctx context.Context, code string) (*domain.Quotation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.quotations[code]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (r *QuotationRepo) DeleteExpiredBefore(ctx context.Context, t time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for code, q := range r.quotations {
		if q.ExpiryTime.Before(t) {
			delete(r.quotations, code)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of stored quotations.
func (r *QuotationRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.quotations)
}

var (
	_ storage.QuotationRepository    = (*QuotationRepo)(nil)
	_ storage.ExpiredQuotationPruner = (*QuotationRepo)(nil)
)
