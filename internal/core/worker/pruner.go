package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/quotation/internal/infra/storage"
)

// Pruner deletes expired quotations based on retention policy.
type Pruner struct {
	retention time.Duration
	store     storage.ExpiredQuotationPruner
	now       func() time.Time
}

// NewPruner creates a new Pruner worker. Quotations are kept for retention
// past their expiry time.
func NewPruner(retention time.Duration, store storage.ExpiredQuotationPruner) *Pruner {
	return &Pruner{
		retention: retention,
		store:     store,
		now:       time.Now,
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check at 10% of the retention period, between 1 minute and 1 hour
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	threshold := p.now().Add(-p.retention)

	deleted, err := p.store.DeleteExpiredBefore(ctx, threshold)
	if err != nil {
		slog.Error("Failed to prune expired quotations", "threshold", threshold, "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Pruned expired quotations", "count", deleted, "threshold", threshold)
	}
}
