package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/vietddude/quotation/internal/core/domain"
	"github.com/vietddude/quotation/internal/core/metrics"
	"github.com/vietddude/quotation/internal/core/retry"
	"github.com/vietddude/quotation/internal/infra/storage"
)

const uniqueViolation = "23505"

// SQLSTATE classes for data exceptions and integrity constraint violations.
const (
	classDataException       = "22"
	classIntegrityConstraint = "23"
)

const (
	insertQuotation = `
INSERT INTO quotations (quotation_code, customer_id, product_code, amount, expiry_time, created_at)
VALUES (:quotation_code, :customer_id, :product_code, :amount, :expiry_time, :created_at)`

	selectQuotationByCode = `
SELECT quotation_code, customer_id, product_code, amount, expiry_time, created_at
FROM quotations
WHERE quotation_code = $1`

	deleteExpiredQuotations = `DELETE FROM quotations WHERE expiry_time < $1`
)

type quotationRow struct {
	Code        string          `db:"quotation_code"`
	CustomerID  int64           `db:"customer_id"`
	ProductCode string          `db:"product_code"`
	Amount      decimal.Decimal `db:"amount"`
	ExpiryTime  time.Time       `db:"expiry_time"`
	CreatedAt   time.Time       `db:"created_at"`
}

func toRow(q domain.Quotation) quotationRow {
	return quotationRow{
		Code:        q.Code,
		CustomerID:  q.CustomerID,
		ProductCode: q.ProductCode,
		Amount:      q.Amount,
		ExpiryTime:  q.ExpiryTime.UTC(),
		CreatedAt:   q.CreatedAt.UTC(),
	}
}

func (r quotationRow) toDomain() domain.Quotation {
	return domain.Quotation{
		Code:        r.Code,
		CustomerID:  r.CustomerID,
		ProductCode: r.ProductCode,
		Amount:      r.Amount,
		ExpiryTime:  r.ExpiryTime.UTC(),
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

// QuotationRepo implements storage.QuotationRepository using PostgreSQL.
type QuotationRepo struct {
	db *sqlx.DB
}

// NewQuotationRepo creates a new PostgreSQL quotation repository.
func NewQuotationRepo(db *sqlx.DB) *QuotationRepo {
	return &QuotationRepo{db: db}
}

// Create inserts a quotation. The primary key on quotation_code turns a
// code collision into storage.ErrDuplicateCode.
func (r *QuotationRepo) Create(ctx context.Context, q domain.Quotation) (domain.Quotation, error) {
	if _, err := r.db.NamedExecContext(ctx, insertQuotation, toRow(q)); err != nil {
		if isUniqueViolation(err) {
			return domain.Quotation{}, fmt.Errorf("%w: %s", storage.ErrDuplicateCode, q.Code)
		}
		metrics.StoreErrors.WithLabelValues("postgres", "create").Inc()
		err = fmt.Errorf("failed to insert quotation: %w", err)
		if isRejectedRow(err) {
			return domain.Quotation{}, retry.Permanent(err)
		}
		return domain.Quotation{}, err
	}
	return q, nil
}

// GetByCode retrieves a quotation by code.
func (r *QuotationRepo) GetByCode(ctx context.Context, code string) (*domain.Quotation, error) {
	var row quotationRow
	err := r.db.GetContext(ctx, &row, selectQuotationByCode, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues("postgres", "get").Inc()
		return nil, fmt.Errorf("failed to get quotation: %w", err)
	}

	q := row.toDomain()
	return &q, nil
}

// DeleteExpiredBefore removes quotations that expired before t.
func (r *QuotationRepo) DeleteExpiredBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteExpiredQuotations, t.UTC())
	if err != nil {
		metrics.StoreErrors.WithLabelValues("postgres", "delete_expired").Inc()
		return 0, fmt.Errorf("failed to delete expired quotations: %w", err)
	}
	return res.RowsAffected()
}

// sqlState extracts the SQLSTATE code from either driver's error.
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// isUniqueViolation recognises unique_violation from either driver.
func isUniqueViolation(err error) bool {
	return sqlState(err) == uniqueViolation
}

// isRejectedRow reports data exceptions and constraint violations other
// than unique_violation.
func isRejectedRow(err error) bool {
	code := sqlState(err)
	if len(code) != 5 || code == uniqueViolation {
		return false
	}
	class := code[:2]
	return class == classDataException || class == classIntegrityConstraint
}

var (
	_ storage.QuotationRepository    = (*QuotationRepo)(nil)
	_ storage.ExpiredQuotationPruner = (*QuotationRepo)(nil)
)
