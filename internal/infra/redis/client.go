package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/quotation/internal/core/domain"
	"github.com/vietddude/quotation/internal/core/metrics"
	"github.com/vietddude/quotation/internal/infra/storage"
)

const defaultKeyPrefix = "quotation"

// minTTL keeps already expired quotations readable for a moment after creation.
const minTTL = time.Second

// Client stores quotations in Redis, one JSON value per code.
type Client struct {
	rdb       *redis.Client
	keyPrefix string
	retention time.Duration
	now       func() time.Time
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	// KeyPrefix namespaces quotation keys; defaults to "quotation".
	KeyPrefix string `yaml:"key_prefix"`
	// Retention keeps a quotation this long past its expiry time.
	Retention time.Duration `yaml:"retention"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newClient(rdb, cfg), nil
}

func newClient(rdb *redis.Client, cfg Config) *Client {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Client{
		rdb:       rdb,
		keyPrefix: prefix,
		retention: cfg.Retention,
		now:       time.Now,
	}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks if Redis is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) quotationKey(code string) string {
	return fmt.Sprintf("%s:%s", c.keyPrefix, code)
}

// ttl keeps the key alive until the quotation expires plus retention.
func (c *Client) ttl(q domain.Quotation) time.Duration {
	ttl := q.ExpiryTime.Sub(c.now()) + c.retention
	if ttl < minTTL {
		return minTTL
	}
	return ttl
}

// Create stores q with SETNX so an existing code is never overwritten.
func (c *Client) Create(ctx context.Context, q domain.Quotation) (domain.Quotation, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return domain.Quotation{}, fmt.Errorf("failed to encode quotation: %w", err)
	}

	ok, err := c.rdb.SetNX(ctx, c.quotationKey(q.Code), payload, c.ttl(q)).Result()
	if err != nil {
		metrics.StoreErrors.WithLabelValues("redis", "create").Inc()
		return domain.Quotation{}, fmt.Errorf("setnx failed: %w", err)
	}
	if !ok {
		return domain.Quotation{}, fmt.Errorf("%w: %s", storage.ErrDuplicateCode, q.Code)
	}
	return q, nil
}

// GetByCode retrieves a quotation, nil once its key is gone.
func (c *Client) GetByCode(ctx context.Context, code string) (*domain.Quotation, error) {
	val, err := c.rdb.Get(ctx, c.quotationKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues("redis", "get").Inc()
		return nil, fmt.Errorf("get failed: %w", err)
	}

	var q domain.Quotation
	if err := json.Unmarshal(val, &q); err != nil {
		return nil, fmt.Errorf("failed to decode quotation %s: %w", code, err)
	}
	return &q, nil
}

var _ storage.QuotationRepository = (*Client)(nil)
