package quotation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/quotation/internal/core/domain"
	"github.com/vietddude/quotation/internal/core/retry"
	"github.com/vietddude/quotation/internal/infra/storage"
)

// =============================================================================
// Fakes
// =============================================================================

var errUnavailable = errors.New("503 service unavailable")

type fakeCustomers struct {
	mu       sync.Mutex
	customer *domain.Customer
	failures int
	calls    int
}

func (f *fakeCustomers) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, fmt.Errorf("attempt %d: %w", f.calls, errUnavailable)
	}
	return f.customer, nil
}

type fakeProducts struct {
	mu       sync.Mutex
	product  *domain.Product
	failures int
	calls    int
	delay    time.Duration
}

func (f *fakeProducts) GetProduct(ctx context.Context, code string) (*domain.Product, error) {
	f.mu.Lock()
	f.calls++
	calls := f.calls
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if calls <= f.failures {
		return nil, errUnavailable
	}
	return f.product, nil
}

type fakeStore struct {
	mu         sync.Mutex
	saved      map[string]domain.Quotation
	failures   int
	commitFail bool // store the record, then report the failure
	failErr    error
	calls      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[string]domain.Quotation)}
}

func (f *fakeStore) Create(ctx context.Context, q domain.Quotation) (domain.Quotation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if _, ok := f.saved[q.Code]; ok {
		return domain.Quotation{}, storage.ErrDuplicateCode
	}
	if f.calls <= f.failures {
		if f.commitFail {
			f.saved[q.Code] = q
		}
		if f.failErr != nil {
			return domain.Quotation{}, f.failErr
		}
		return domain.Quotation{}, errors.New("connection reset by peer")
	}
	f.saved[q.Code] = q
	return q, nil
}

func (f *fakeStore) GetByCode(ctx context.Context, code string) (*domain.Quotation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.saved[code]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

// =============================================================================
// Fixtures
// =============================================================================

const (
	customerID       = int64(1)
	productCode      = "CAR001-01"
	postCode         = "SW20"
	postCodeOut      = "SM3"
	postCodeDiscount = "XX1"
)

var fixedNow = time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)

func customerAged(years int) *domain.Customer {
	return &domain.Customer{
		ID:   customerID,
		DOB:  fixedNow.AddDate(-years, 0, -1),
		Name: "Jane Doe",
	}
}

func carProduct() *domain.Product {
	return &domain.Product{
		Code:                  productCode,
		Class:                 "Online",
		Plan:                  "Home-General",
		ListedPrice:           decimal.NewFromInt(1500),
		PostCodesInService:    []string{postCode, postCodeDiscount, "SM1", "E12"},
		PostCodesWithDiscount: []string{postCodeDiscount, "E3", "E4"},
		PostCodeDiscountRate:  decimal.RequireFromString("0.1"),
	}
}

func instant(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, Backoff: retry.BackoffFixed}
}

func testConfig() Config {
	return Config{
		Expiry:               1440 * time.Minute,
		Timeout:              5 * time.Second,
		CustomerRetry:        instant(4),
		ProductRetry:         instant(4),
		PersistRetry:         instant(4),
		RegenerateOnConflict: true,
	}
}

func sequentialCodes(codes ...string) func() string {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		code := codes[i%len(codes)]
		i++
		return code
	}
}

func newTestService(t *testing.T, cfg Config, c CustomerSource, p ProductSource, s storage.QuotationRepository, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	svc, err := NewService(cfg, c, p, s, opts...)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func request(post string) domain.QuotationRequest {
	return domain.QuotationRequest{CustomerID: customerID, ProductCode: productCode, PostCode: post}
}

// =============================================================================
// Tests
// =============================================================================

func TestGenerate_ListedPrice(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, testConfig(),
		&fakeCustomers{customer: customerAged(30)}, &fakeProducts{product: carProduct()}, store)

	q, err := svc.Generate(context.Background(), request(postCode))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if !q.Amount.Equal(decimal.RequireFromString("1500.00")) {
		t.Errorf("expected amount 1500.00, got %s", q.Amount)
	}
	if q.Code == "" {
		t.Error("expected non-empty quotation code")
	}
	if q.CustomerID != customerID || q.ProductCode != productCode {
		t.Errorf("unexpected quotation identity: %+v", q)
	}
	if !q.ExpiryTime.After(q.CreatedAt) {
		t.Errorf("expiry %v must be after creation %v", q.ExpiryTime, q.CreatedAt)
	}
	if want := fixedNow.Add(1440 * time.Minute); !q.ExpiryTime.Equal(want) {
		t.Errorf("expected expiry %v, got %v", want, q.ExpiryTime)
	}
	if store.count() != 1 {
		t.Errorf("expected 1 persisted quotation, got %d", store.count())
	}
}

func TestGenerate_Discount(t *testing.T) {
	svc := newTestService(t, testConfig(),
		&fakeCustomers{customer: customerAged(30)}, &fakeProducts{product: carProduct()}, newFakeStore())

	q, err := svc.Generate(context.Background(), request(postCodeDiscount))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !q.Amount.Equal(decimal.RequireFromString("1350.00")) {
		t.Errorf("expected amount 1350.00, got %s", q.Amount)
	}
}

func TestGenerate_CriteriaViolations(t *testing.T) {
	tests := []struct {
		name     string
		age      int
		postCode string
		kind     ViolationKind
	}{
		{"below 18", 17, postCode, AgeIneligible},
		{"out of service area", 30, postCodeOut, OutOfServiceArea},
		{"below 18 and out of area", 17, postCodeOut, AgeIneligible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			svc := newTestService(t, testConfig(),
				&fakeCustomers{customer: customerAged(tt.age)}, &fakeProducts{product: carProduct()}, store)

			_, err := svc.Generate(context.Background(), request(tt.postCode))
			if !errors.Is(err, ErrCriteriaNotFulfilled) {
				t.Fatalf("expected ErrCriteriaNotFulfilled, got %v", err)
			}
			v, ok := ViolationOf(err)
			if !ok || v.Kind != tt.kind {
				t.Errorf("expected violation %s, got %v", tt.kind, err)
			}
			if store.calls != 0 || store.count() != 0 {
				t.Errorf("nothing should be persisted, store saw %d calls", store.calls)
			}
		})
	}
}

func TestGenerate_UnknownCustomer(t *testing.T) {
	customers := &fakeCustomers{customer: nil}
	products := &fakeProducts{product: carProduct()}
	store := newFakeStore()
	svc := newTestService(t, testConfig(), customers, products, store)

	_, err := svc.Generate(context.Background(), request(postCode))
	var nf *RecordNotFoundError
	if !errors.As(err, &nf) || nf.Record != "customer" {
		t.Fatalf("expected customer RecordNotFoundError, got %v", err)
	}
	if !errors.Is(err, ErrRecordNotFound) {
		t.Error("expected error to match ErrRecordNotFound")
	}
	if customers.calls != 1 {
		t.Errorf("not found must not be retried, got %d calls", customers.calls)
	}
	if products.calls != 0 {
		t.Errorf("product must not be fetched after a missing customer, got %d calls", products.calls)
	}
	if store.calls != 0 {
		t.Error("nothing should be persisted")
	}
}

func TestGenerate_UnknownProduct(t *testing.T) {
	products := &fakeProducts{product: nil}
	svc := newTestService(t, testConfig(),
		&fakeCustomers{customer: customerAged(30)}, products, newFakeStore())

	_, err := svc.Generate(context.Background(), request(postCode))
	var nf *RecordNotFoundError
	if !errors.As(err, &nf) || nf.Record != "product" {
		t.Fatalf("expected product RecordNotFoundError, got %v", err)
	}
	if products.calls != 1 {
		t.Errorf("not found must not be retried, got %d calls", products.calls)
	}
}

func TestGenerate_NotFoundErrorIsNotRetried(t *testing.T) {
	missing := &RecordNotFoundError{Record: "customer", Key: "1"}
	calls := 0
	customers := customerFunc(func(ctx context.Context, id int64) (*domain.Customer, error) {
		calls++
		return nil, missing
	})
	svc := newTestService(t, testConfig(), customers, &fakeProducts{product: carProduct()}, newFakeStore())

	_, err := svc.Generate(context.Background(), request(postCode))
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestGenerate_RetryCustomer(t *testing.T) {
	t.Run("succeeds on last attempt", func(t *testing.T) {
		customers := &fakeCustomers{customer: customerAged(30), failures: 3}
		svc := newTestService(t, testConfig(), customers, &fakeProducts{product: carProduct()}, newFakeStore())

		if _, err := svc.Generate(context.Background(), request(postCode)); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if customers.calls != 4 {
			t.Errorf("expected 4 calls, got %d", customers.calls)
		}
	})

	t.Run("exhausted", func(t *testing.T) {
		customers := &fakeCustomers{customer: customerAged(30), failures: 4}
		products := &fakeProducts{product: carProduct()}
		svc := newTestService(t, testConfig(), customers, products, newFakeStore())

		_, err := svc.Generate(context.Background(), request(postCode))
		if !errors.Is(err, retry.ErrRetriesExhausted) {
			t.Fatalf("expected ErrRetriesExhausted, got %v", err)
		}
		if !errors.Is(err, errUnavailable) {
			t.Errorf("expected last failure to be wrapped, got %v", err)
		}
		if customers.calls != 4 {
			t.Errorf("expected 4 calls, got %d", customers.calls)
		}
		if products.calls != 0 {
			t.Errorf("product must not be fetched, got %d calls", products.calls)
		}
	})
}

func TestGenerate_RetryProduct(t *testing.T) {
	t.Run("succeeds on last attempt", func(t *testing.T) {
		products := &fakeProducts{product: carProduct(), failures: 3}
		svc := newTestService(t, testConfig(), &fakeCustomers{customer: customerAged(30)}, products, newFakeStore())

		if _, err := svc.Generate(context.Background(), request(postCode)); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if products.calls != 4 {
			t.Errorf("expected 4 calls, got %d", products.calls)
		}
	})

	t.Run("exhausted", func(t *testing.T) {
		products := &fakeProducts{product: carProduct(), failures: 4}
		store := newFakeStore()
		svc := newTestService(t, testConfig(), &fakeCustomers{customer: customerAged(30)}, products, store)

		_, err := svc.Generate(context.Background(), request(postCode))
		if !errors.Is(err, retry.ErrRetriesExhausted) {
			t.Fatalf("expected ErrRetriesExhausted, got %v", err)
		}
		if store.calls != 0 {
			t.Error("nothing should be persisted")
		}
	})
}

func TestGenerate_RetryPersist(t *testing.T) {
	t.Run("succeeds after transient failure", func(t *testing.T) {
		store := newFakeStore()
		store.failures = 1
		svc := newTestService(t, testConfig(),
			&fakeCustomers{customer: customerAged(30)}, &fakeProducts{product: carProduct()}, store)

		if _, err := svc.Generate(context.Background(), request(postCode)); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if store.calls != 2 {
			t.Errorf("expected 2 store calls, got %d", store.calls)
		}
	})

	t.Run("exhausted", func(t *testing.T) {
		store := newFakeStore()
		store.failures = 4
		svc := newTestService(t, testConfig(),
			&fakeCustomers{customer: customerAged(30)}, &fakeProducts{product: carProduct()}, store)

		_, err := svc.Generate(context.Background(), request(postCode))
		if !errors.Is(err, retry.ErrRetriesExhausted) {
			t.Fatalf("expected ErrRetriesExhausted, got %v", err)
		}
		if store.calls != 4 {
			t.Errorf("expected 4 store calls, got %d", store.calls)
		}
	})

	t.Run("rejected row is not retried", func(t *testing.T) {
		store := newFakeStore()
		store.failures = 4
		store.failErr = retry.Permanent(errors.New("value too long for type character varying(64)"))
		svc := newTestService(t, testConfig(),
			&fakeCustomers{customer: customerAged(30)}, &fakeProducts{product: carProduct()}, store)

		_, err := svc.Generate(context.Background(), request(postCode))
		if err == nil {
			t.Fatal("expected error")
		}
		if errors.Is(err, retry.ErrRetriesExhausted) {
			t.Errorf("permanent store failure must not be retried: %v", err)
		}
		if store.calls != 1 {
			t.Errorf("expected 1 store call, got %d", store.calls)
		}
	})

	t.Run("earlier attempt committed", func(t *testing.T) {
		store := newFakeStore()
		store.failures = 1
		store.commitFail = true
		svc := newTestService(t, testConfig(),
			&fakeCustomers{customer: customerAged(30)}, &fakeProducts{product: carProduct()}, store,
			WithCodeGenerator(sequentialCodes("code-1", "code-2")))

		q, err := svc.Generate(context.Background(), request(postCode))
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if q.Code != "code-1" {
			t.Errorf("expected the committed record code-1, got %s", q.Code)
		}
		if store.count() != 1 {
			t.Errorf("expected 1 persisted quotation, got %d", store.count())
		}
	})
}

func TestGenerate_CodeConflict(t *testing.T) {
	existing := domain.Quotation{Code: "taken", CustomerID: 99, ProductCode: "OTHER", Amount: decimal.NewFromInt(1)}

	t.Run("regenerates once", func(t *testing.T) {
		store := newFakeStore()
		store.saved["taken"] = existing
		svc := newTestService(t, testConfig(),
			&fakeCustomers{customer: customerAged(30)}, &fakeProducts{product: carProduct()}, store,
			WithCodeGenerator(sequentialCodes("taken", "fresh")))

		q, err := svc.Generate(context.Background(), request(postCode))
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if q.Code != "fresh" {
			t.Errorf("expected regenerated code 'fresh', got %s", q.Code)
		}
		if store.calls != 2 {
			t.Errorf("conflict must not be retried as transient, got %d store calls", store.calls)
		}
	})

	t.Run("second conflict is fatal", func(t *testing.T) {
		store := newFakeStore()
		store.saved["taken"] = existing
		svc := newTestService(t, testConfig(),
			&fakeCustomers{customer: customerAged(30)}, &fakeProducts{product: carProduct()}, store,
			WithCodeGenerator(sequentialCodes("taken")))

		_, err := svc.Generate(context.Background(), request(postCode))
		if !errors.Is(err, ErrPersistenceConflict) {
			t.Fatalf("expected ErrPersistenceConflict, got %v", err)
		}
		if store.calls != 2 {
			t.Errorf("expected 2 store calls, got %d", store.calls)
		}
	})

	t.Run("regeneration disabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.RegenerateOnConflict = false
		store := newFakeStore()
		store.saved["taken"] = existing
		svc := newTestService(t, cfg,
			&fakeCustomers{customer: customerAged(30)}, &fakeProducts{product: carProduct()}, store,
			WithCodeGenerator(sequentialCodes("taken", "fresh")))

		_, err := svc.Generate(context.Background(), request(postCode))
		if !errors.Is(err, ErrPersistenceConflict) {
			t.Fatalf("expected ErrPersistenceConflict, got %v", err)
		}
		if store.calls != 1 {
			t.Errorf("expected 1 store call, got %d", store.calls)
		}
	})
}

func TestGenerate_InvalidRequest(t *testing.T) {
	customers := &fakeCustomers{customer: customerAged(30)}
	svc := newTestService(t, testConfig(), customers, &fakeProducts{product: carProduct()}, newFakeStore())

	bad := []domain.QuotationRequest{
		{CustomerID: 0, ProductCode: productCode, PostCode: postCode},
		{CustomerID: customerID, ProductCode: " ", PostCode: postCode},
		{CustomerID: customerID, ProductCode: productCode, PostCode: ""},
	}
	for _, req := range bad {
		if _, err := svc.Generate(context.Background(), req); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("%+v: expected ErrInvalidRequest, got %v", req, err)
		}
	}
	if customers.calls != 0 {
		t.Errorf("invalid requests must not reach the customer source, got %d calls", customers.calls)
	}
}

func TestGenerate_InvalidProduct(t *testing.T) {
	product := carProduct()
	product.PostCodeDiscountRate = decimal.RequireFromString("1.5")
	store := newFakeStore()
	svc := newTestService(t, testConfig(), &fakeCustomers{customer: customerAged(30)}, &fakeProducts{product: product}, store)

	_, err := svc.Generate(context.Background(), request(postCodeDiscount))
	if !errors.Is(err, domain.ErrInvalidProduct) {
		t.Fatalf("expected ErrInvalidProduct, got %v", err)
	}
	if store.calls != 0 {
		t.Error("nothing should be persisted")
	}
}

func TestGenerate_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	cfg.CustomerRetry = retry.Policy{MaxAttempts: 100, Backoff: retry.BackoffFixed, InitialDelay: 20 * time.Millisecond}
	customers := &fakeCustomers{customer: customerAged(30), failures: 1000}
	svc := newTestService(t, cfg, customers, &fakeProducts{product: carProduct()}, newFakeStore())

	start := time.Now()
	_, err := svc.Generate(context.Background(), request(postCode))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout not enforced, took %v", elapsed)
	}
}

func TestGenerate_ParallelFetch(t *testing.T) {
	cfg := testConfig()
	cfg.ParallelFetch = true

	t.Run("success", func(t *testing.T) {
		svc := newTestService(t, cfg,
			&fakeCustomers{customer: customerAged(30)}, &fakeProducts{product: carProduct()}, newFakeStore())

		q, err := svc.Generate(context.Background(), request(postCodeDiscount))
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if !q.Amount.Equal(decimal.RequireFromString("1350")) {
			t.Errorf("expected 1350, got %s", q.Amount)
		}
	})

	t.Run("failure cancels sibling", func(t *testing.T) {
		products := &fakeProducts{product: carProduct(), delay: 5 * time.Second}
		svc := newTestService(t, cfg, &fakeCustomers{customer: nil}, products, newFakeStore())

		start := time.Now()
		_, err := svc.Generate(context.Background(), request(postCode))
		if !errors.Is(err, ErrRecordNotFound) {
			t.Fatalf("expected ErrRecordNotFound, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("product fetch was not cancelled, took %v", elapsed)
		}
	})
}

func TestFetch(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, testConfig(),
		&fakeCustomers{customer: customerAged(30)}, &fakeProducts{product: carProduct()}, store)

	q, err := svc.Generate(context.Background(), request(postCode))
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	got, err := svc.Fetch(context.Background(), q.Code)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if !got.SameContent(*q) {
		t.Errorf("fetched %+v, generated %+v", got, q)
	}

	_, err = svc.Fetch(context.Background(), "missing")
	var nf *RecordNotFoundError
	if !errors.As(err, &nf) || nf.Record != "quotation" {
		t.Errorf("expected quotation RecordNotFoundError, got %v", err)
	}
}

func TestNewService_RejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Expiry = 0
	if _, err := NewService(cfg, nil, nil, nil); err == nil {
		t.Error("expected error for zero expiry")
	}

	cfg = testConfig()
	cfg.ProductRetry.Backoff = "linear"
	if _, err := NewService(cfg, nil, nil, nil); err == nil {
		t.Error("expected error for unknown backoff")
	}
}

type customerFunc func(ctx context.Context, id int64) (*domain.Customer, error)

func (f customerFunc) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	return f(ctx, id)
}
