package config

import (
	"time"

	"github.com/vietddude/quotation/internal/core/quotation"
	"github.com/vietddude/quotation/internal/core/retry"
	"github.com/vietddude/quotation/internal/infra/client"
	redisclient "github.com/vietddude/quotation/internal/infra/redis"
	"github.com/vietddude/quotation/internal/infra/storage/postgres"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server          ServerConfig       `yaml:"server"`
	Logging         LoggingConfig      `yaml:"logging"`
	Storage         StorageConfig      `yaml:"storage"`
	Database        postgres.Config    `yaml:"database"`
	Redis           redisclient.Config `yaml:"redis"`
	CustomerService RemoteConfig       `yaml:"customer_service"`
	ProductService  RemoteConfig       `yaml:"product_service"`
	Quotation       QuotationConfig    `yaml:"quotation"`
}

// ServerConfig holds HTTP and gRPC server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	GRPCPort        int           `yaml:"grpc_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// StorageConfig selects where quotations are persisted.
type StorageConfig struct {
	Driver      string `yaml:"driver"` // memory, postgres, redis
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// RemoteConfig holds the endpoint and retry policy of a remote service.
type RemoteConfig struct {
	client.Config `yaml:",inline"`
	Retry         retry.Policy `yaml:"retry"`
}

// QuotationConfig holds quotation generation settings.
type QuotationConfig struct {
	Expiry               time.Duration `yaml:"expiry"`
	Timeout              time.Duration `yaml:"timeout"`
	PersistRetry         retry.Policy  `yaml:"persist_retry"`
	RegenerateOnConflict *bool         `yaml:"regenerate_on_conflict"`
	ParallelFetch        bool          `yaml:"parallel_fetch"`
	// Retention keeps expired quotations this long before pruning; 0 keeps them forever.
	Retention            time.Duration `yaml:"retention"`
}

// ServiceConfig converts the loaded settings into quotation.Service settings.
func (c *AppConfig) ServiceConfig() quotation.Config {
	cfg := quotation.Config{
		Expiry:        c.Quotation.Expiry,
		Timeout:       c.Quotation.Timeout,
		CustomerRetry: c.CustomerService.Retry,
		ProductRetry:  c.ProductService.Retry,
		PersistRetry:  c.Quotation.PersistRetry,
		ParallelFetch: c.Quotation.ParallelFetch,
	}
	if c.Quotation.RegenerateOnConflict != nil {
		cfg.RegenerateOnConflict = *c.Quotation.RegenerateOnConflict
	}
	return cfg
}
