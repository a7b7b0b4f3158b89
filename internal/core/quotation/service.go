// Package quotation computes, validates and persists insurance quotations.
package quotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/quotation/internal/core/domain"
	"github.com/vietddude/quotation/internal/core/metrics"
	"github.com/vietddude/quotation/internal/core/retry"
	"github.com/vietddude/quotation/internal/infra/storage"
)

// CustomerSource looks up customers. A nil customer with a nil error means
// the customer does not exist.
type CustomerSource interface {
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
}

// ProductSource looks up products. A nil product with a nil error means the
// product does not exist.
type ProductSource interface {
	GetProduct(ctx context.Context, code string) (*domain.Product, error)
}

// Stage is a step of the quotation pipeline.
type Stage string

const (
	StageStart           Stage = "start"
	StageCustomerFetched Stage = "customer_fetched"
	StageProductFetched  Stage = "product_fetched"
	StageValidated       Stage = "validated"
	StagePriced          Stage = "priced"
	StagePersisted       Stage = "persisted"
	StageFailed          Stage = "failed"
)

// Config holds the immutable settings of a Service.
type Config struct {
	// Expiry is how long a quotation stays valid after creation.
	Expiry time.Duration
	// Timeout bounds one Generate call including all retries; 0 disables it.
	Timeout time.Duration

	CustomerRetry retry.Policy
	ProductRetry  retry.Policy
	PersistRetry  retry.Policy

	// RegenerateOnConflict retries persistence once with a fresh code when
	// the generated code is already taken.
	RegenerateOnConflict bool
	// ParallelFetch looks up customer and product concurrently.
	ParallelFetch bool
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Expiry:        1440 * time.Minute,
		Timeout:       30 * time.Second,
		CustomerRetry: retry.DefaultPolicy,
		ProductRetry: retry.Policy{
			MaxAttempts:  3,
			Backoff:      retry.BackoffExponential,
			InitialDelay: 300 * time.Millisecond,
			Multiplier:   2,
			MaxDelay:     2 * time.Second,
		},
		PersistRetry: retry.Policy{
			MaxAttempts:  3,
			Backoff:      retry.BackoffExponential,
			InitialDelay: 200 * time.Millisecond,
			Multiplier:   2,
			MaxDelay:     2 * time.Second,
		},
		RegenerateOnConflict: true,
	}
}

// Service orchestrates quotation generation.
type Service struct {
	cfg       Config
	customers CustomerSource
	products  ProductSource
	store     storage.QuotationRepository

	now     func() time.Time
	newCode func() string
	log     *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCodeGenerator replaces the UUID quotation code generator.
func WithCodeGenerator(gen func() string) Option {
	return func(s *Service) { s.newCode = gen }
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// NewService creates a Service. Policies without a classifier get one that
// never retries missing records or code conflicts.
func NewService(
	cfg Config,
	customers CustomerSource,
	products ProductSource,
	store storage.QuotationRepository,
	opts ...Option,
) (*Service, error) {
	if cfg.Expiry <= 0 {
		return nil, fmt.Errorf("quotation expiry must be positive, got %v", cfg.Expiry)
	}

	policies := map[string]*retry.Policy{
		"customer": &cfg.CustomerRetry,
		"product":  &cfg.ProductRetry,
		"persist":  &cfg.PersistRetry,
	}
	for name, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s retry policy: %w", name, err)
		}
	}

	if cfg.CustomerRetry.Classify == nil {
		cfg.CustomerRetry.Classify = retry.FatalOn(ErrRecordNotFound)
	}
	if cfg.ProductRetry.Classify == nil {
		cfg.ProductRetry.Classify = retry.FatalOn(ErrRecordNotFound)
	}
	if cfg.PersistRetry.Classify == nil {
		cfg.PersistRetry.Classify = retry.FatalOn(storage.ErrDuplicateCode)
	}

	s := &Service{
		cfg:       cfg,
		customers: customers,
		products:  products,
		store:     store,
		now:       time.Now,
		newCode:   uuid.NewString,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Generate runs the full pipeline for one request: fetch customer, fetch
// product, validate, price, persist. Nothing is persisted unless every
// earlier stage succeeded.
func (s *Service) Generate(ctx context.Context, req domain.QuotationRequest) (*domain.Quotation, error) {
	log := s.log.With("customer_id", req.CustomerID, "product_code", req.ProductCode)

	q, stage, err := s.generate(ctx, req, log)
	metrics.QuotationRequests.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		log.Warn("Quotation failed", "last_stage", stage, "stage", StageFailed, "error", err)
		return nil, err
	}

	log.Info("Quotation generated",
		"quotation_code", q.Code,
		"amount", q.Amount.StringFixed(AmountPlaces),
		"expiry_time", q.ExpiryTime,
	)
	return &q, nil
}

func (s *Service) generate(ctx context.Context, req domain.QuotationRequest, log *slog.Logger) (domain.Quotation, Stage, error) {
	stage := StageStart
	advance := func(next Stage) {
		stage = next
		log.Debug("Quotation stage reached", "stage", stage)
	}

	if err := req.Validate(); err != nil {
		return domain.Quotation{}, stage, err
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	customer, product, err := s.fetchRecords(ctx, req, advance)
	if err != nil {
		return domain.Quotation{}, stage, err
	}

	now := s.now().UTC().Truncate(time.Microsecond)

	if err := Validate(req, customer, product, now); err != nil {
		return domain.Quotation{}, stage, fmt.Errorf("%w: %w", ErrCriteriaNotFulfilled, err)
	}
	advance(StageValidated)

	amount := Price(req, product)
	log.Debug("Quotation priced",
		"listed_price", product.ListedPrice.String(),
		"amount", amount.String(),
		"discounted", product.DiscountsPostCode(req.PostCode),
	)
	advance(StagePriced)

	q := domain.Quotation{
		Code:        s.newCode(),
		CustomerID:  req.CustomerID,
		ProductCode: req.ProductCode,
		Amount:      amount,
		ExpiryTime:  now.Add(s.cfg.Expiry),
		CreatedAt:   now,
	}

	saved, err := s.persist(ctx, q)
	if err != nil {
		return domain.Quotation{}, stage, err
	}
	advance(StagePersisted)

	return saved, stage, nil
}

// fetchRecords retrieves both records, one after the other unless
// ParallelFetch is set. Both are required before validation.
func (s *Service) fetchRecords(
	ctx context.Context,
	req domain.QuotationRequest,
	advance func(Stage),
) (domain.Customer, domain.Product, error) {
	if !s.cfg.ParallelFetch {
		customer, err := s.fetchCustomer(ctx, req.CustomerID)
		if err != nil {
			return domain.Customer{}, domain.Product{}, err
		}
		advance(StageCustomerFetched)

		product, err := s.fetchProduct(ctx, req.ProductCode)
		if err != nil {
			return domain.Customer{}, domain.Product{}, err
		}
		advance(StageProductFetched)

		return customer, product, nil
	}

	var (
		customer domain.Customer
		product  domain.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		customer, err = s.fetchCustomer(gctx, req.CustomerID)
		return err
	})
	g.Go(func() error {
		var err error
		product, err = s.fetchProduct(gctx, req.ProductCode)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Customer{}, domain.Product{}, err
	}
	advance(StageCustomerFetched)
	advance(StageProductFetched)

	return customer, product, nil
}

func (s *Service) fetchCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	defer observeStage("fetch_customer", time.Now())

	c, err := retry.Do(ctx, "get_customer", s.cfg.CustomerRetry, func(ctx context.Context) (*domain.Customer, error) {
		return s.customers.GetCustomer(ctx, id)
	})
	if err != nil {
		return domain.Customer{}, fmt.Errorf("retrieve customer %d: %w", id, err)
	}
	if c == nil {
		return domain.Customer{}, &RecordNotFoundError{Record: "customer", Key: strconv.FormatInt(id, 10)}
	}
	return *c, nil
}

func (s *Service) fetchProduct(ctx context.Context, code string) (domain.Product, error) {
	defer observeStage("fetch_product", time.Now())

	p, err := retry.Do(ctx, "get_product", s.cfg.ProductRetry, func(ctx context.Context) (*domain.Product, error) {
		return s.products.GetProduct(ctx, code)
	})
	if err != nil {
		return domain.Product{}, fmt.Errorf("retrieve product %s: %w", code, err)
	}
	if p == nil {
		return domain.Product{}, &RecordNotFoundError{Record: "product", Key: code}
	}
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}
	return *p, nil
}

// persist saves q. A code collision is never retried as such: the code is
// regenerated once when configured, otherwise ErrPersistenceConflict.
func (s *Service) persist(ctx context.Context, q domain.Quotation) (domain.Quotation, error) {
	defer observeStage("persist", time.Now())

	saved, err := s.create(ctx, q)
	if errors.Is(err, storage.ErrDuplicateCode) && s.cfg.RegenerateOnConflict {
		previous := q.Code
		q.Code = s.newCode()
		s.log.Warn("Quotation code collision, regenerating",
			"previous_code", previous,
			"quotation_code", q.Code,
		)
		saved, err = s.create(ctx, q)
	}

	if errors.Is(err, storage.ErrDuplicateCode) {
		return domain.Quotation{}, fmt.Errorf("%w: %w", ErrPersistenceConflict, err)
	}
	if err != nil {
		return domain.Quotation{}, fmt.Errorf("save quotation %s: %w", q.Code, err)
	}
	return saved, nil
}

func (s *Service) create(ctx context.Context, q domain.Quotation) (domain.Quotation, error) {
	attempt := 0
	return retry.Do(ctx, "save_quotation", s.cfg.PersistRetry, func(ctx context.Context) (domain.Quotation, error) {
		attempt++
		saved, err := s.store.Create(ctx, q)
		if errors.Is(err, storage.ErrDuplicateCode) && attempt > 1 {
			// an earlier attempt may have committed before reporting failure
			existing, getErr := s.store.GetByCode(ctx, q.Code)
			if getErr == nil && existing != nil && existing.SameContent(q) {
				return *existing, nil
			}
		}
		return saved, err
	})
}

// Fetch returns a stored quotation by code.
func (s *Service) Fetch(ctx context.Context, code string) (*domain.Quotation, error) {
	q, err := retry.Do(ctx, "get_quotation", s.cfg.PersistRetry, func(ctx context.Context) (*domain.Quotation, error) {
		return s.store.GetByCode(ctx, code)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch quotation %s: %w", code, err)
	}
	if q == nil {
		return nil, &RecordNotFoundError{Record: "quotation", Key: code}
	}
	return q, nil
}

func observeStage(stage string, start time.Time) {
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrRecordNotFound):
		return "not_found"
	case errors.Is(err, ErrCriteriaNotFulfilled):
		return "criteria_not_fulfilled"
	case errors.Is(err, ErrPersistenceConflict):
		return "conflict"
	case errors.Is(err, retry.ErrRetriesExhausted):
		return "retries_exhausted"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
