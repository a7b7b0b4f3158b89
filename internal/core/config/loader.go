package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/quotation/internal/core/quotation"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables and
// filling in defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	def := quotation.DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageMemory
	}

	cfg.CustomerService.Retry = cfg.CustomerService.Retry.WithDefaults(def.CustomerRetry)
	cfg.ProductService.Retry = cfg.ProductService.Retry.WithDefaults(def.ProductRetry)
	cfg.Quotation.PersistRetry = cfg.Quotation.PersistRetry.WithDefaults(def.PersistRetry)

	if cfg.Quotation.Expiry == 0 {
		cfg.Quotation.Expiry = def.Expiry
	}
	if cfg.Quotation.Timeout == 0 {
		cfg.Quotation.Timeout = def.Timeout
	}
	if cfg.Quotation.RegenerateOnConflict == nil {
		regenerate := def.RegenerateOnConflict
		cfg.Quotation.RegenerateOnConflict = &regenerate
	}
}

// Validate reports settings the service cannot start with.
func (c *AppConfig) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for storage driver %q", c.Storage.Driver)
		}
	case StorageRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required for storage driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.CustomerService.BaseURL == "" {
		return fmt.Errorf("customer_service.base_url is required")
	}
	if c.ProductService.BaseURL == "" {
		return fmt.Errorf("product_service.base_url is required")
	}

	policies := map[string]interface{ Validate() error }{
		"customer_service.retry":  c.CustomerService.Retry,
		"product_service.retry":   c.ProductService.Retry,
		"quotation.persist_retry": c.Quotation.PersistRetry,
	}
	for name, p := range policies {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Quotation.Expiry < 0 {
		return fmt.Errorf("quotation.expiry must be positive, got %v", c.Quotation.Expiry)
	}
	return nil
}
