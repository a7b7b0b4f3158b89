package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vietddude/quotation/internal/core/config"
	"github.com/vietddude/quotation/internal/core/quotation"
	"github.com/vietddude/quotation/internal/core/worker"
	"github.com/vietddude/quotation/internal/health"
	"github.com/vietddude/quotation/internal/infra/client"
	redisclient "github.com/vietddude/quotation/internal/infra/redis"
	"github.com/vietddude/quotation/internal/infra/storage"
	"github.com/vietddude/quotation/internal/infra/storage/memory"
	"github.com/vietddude/quotation/internal/infra/storage/postgres"
	"github.com/vietddude/quotation/internal/server"
)

// App wires the quotation service to its clients, store and servers.
type App struct {
	cfg         *config.AppConfig
	service     *quotation.Service
	customers   *client.CustomerClient
	products    *client.ProductClient
	store       storage.QuotationRepository
	db          *postgres.DB
	redisClient *redisclient.Client
	pruner      *worker.Pruner
	healthMon   *health.Monitor
	httpServer  *server.Server
	grpcServer  *server.GRPCServer
	log         *slog.Logger
}

// New creates an App with all dependencies initialized. Servers are built
// but not started.
func New(cfg *config.AppConfig, opts ...quotation.Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		healthMon: health.NewMonitor(health.DefaultCheckInterval),
		log:       slog.Default(),
	}

	// 1. Initialize Storage
	if err := a.initStorage(); err != nil {
		return nil, err
	}

	// 2. Initialize Clients
	var err error
	a.customers, err = client.NewCustomerClient(cfg.CustomerService.Config)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.products, err = client.NewProductClient(cfg.ProductService.Config)
	if err != nil {
		a.Close()
		return nil, err
	}

	// 3. Initialize Service
	opts = append([]quotation.Option{quotation.WithLogger(a.log)}, opts...)
	a.service, err = quotation.NewService(cfg.ServiceConfig(), a.customers, a.products, a.store, opts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to init quotation service: %w", err)
	}

	// 4. Initialize Pruner
	if p, ok := a.store.(storage.ExpiredQuotationPruner); ok && cfg.Quotation.Retention > 0 {
		a.pruner = worker.NewPruner(cfg.Quotation.Retention, p)
	}

	// 5. Initialize Servers
	a.httpServer = server.NewServer(a.service, a.healthMon, cfg.Server.Port)
	a.grpcServer = server.NewGRPCServer(cfg.Server.GRPCPort)

	return a, nil
}

func (a *App) initStorage() error {
	switch a.cfg.Storage.Driver {
	case config.StoragePostgres:
		db, err := postgres.NewDB(context.Background(), a.cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		if a.cfg.Storage.AutoMigrate {
			if err := postgres.Migrate(db.DB.DB); err != nil {
				_ = db.Close()
				return fmt.Errorf("failed to migrate db: %w", err)
			}
		}
		a.db = db
		a.store = postgres.NewQuotationRepo(db.DB)
		a.healthMon.Register("database", true, db.Health)
		a.log.Info("Using PostgreSQL storage", "driver", a.cfg.Database.Driver)

	case config.StorageRedis:
		rc, err := redisclient.NewClient(a.cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to init redis: %w", err)
		}
		a.redisClient = rc
		a.store = rc
		a.healthMon.Register("redis", true, rc.Health)
		a.log.Info("Using Redis storage")

	default:
		a.store = memory.NewQuotationRepo()
		a.log.Info("Using in-memory storage")
	}
	return nil
}

// Service returns the quotation orchestrator.
func (a *App) Service() *quotation.Service {
	return a.service
}

// Customers returns the customer service client.
func (a *App) Customers() *client.CustomerClient {
	return a.customers
}

// Products returns the product service client.
func (a *App) Products() *client.ProductClient {
	return a.products
}

// Start starts the servers and background workers. It does not block.
func (a *App) Start(ctx context.Context) error {
	// Start HTTP Server
	go func() {
		if err := a.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("HTTP server failed", "error", err)
		}
	}()

	// Start gRPC Server
	go func() {
		if err := a.grpcServer.Start(); err != nil {
			a.log.Error("gRPC server failed", "error", err)
		}
	}()
	go a.grpcServer.Watch(ctx, a.healthMon, health.DefaultCheckInterval)

	// Start DB Metrics Collector
	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	// Start Pruner
	if a.pruner != nil {
		a.log.Info("Starting pruner", "retention", a.cfg.Quotation.Retention)
		go a.pruner.Start(ctx)
	}

	a.log.Info("Quotation service listening",
		"http_port", a.cfg.Server.Port,
		"grpc_port", a.cfg.Server.GRPCPort,
		"storage", a.cfg.Storage.Driver,
	)
	return nil
}

// Stop gracefully stops the servers and releases connections.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping quotation service...")

	var errs []error
	if err := a.httpServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if err := a.grpcServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("grpc server: %w", err))
	}
	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases store connections without touching the servers.
func (a *App) Close() error {
	var errs []error
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		a.redisClient = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
		a.db = nil
	}
	return errors.Join(errs...)
}
