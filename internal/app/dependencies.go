package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/account"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/review"
	"github.com/vladislavdragonenkov/storefront/internal/service/tracking"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/storefront/internal/storage/redis"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
)

// runtimeDependencies — репозитории выбранного хранилища и открытые соединения.
type runtimeDependencies struct {
	products    domain.ProductRepository
	customers   domain.CustomerRepository
	orders      domain.OrderRepository
	carts       domain.CartRepository
	payments    domain.PaymentRepository
	shipments   domain.ShipmentRepository
	reviews     domain.ReviewRepository
	timeline    domain.TimelineRepository
	outbox      domain.OutboxRepository
	idempotency domain.IdempotencyRepository
	tx          domain.Transactor

	pgStore     *postgres.Store
	redisClient *goredis.Client
}

// initRuntimeDependencies открывает хранилище по cfg.StorageDriver и,
// при CartDriver=redis, подключает корзины к Redis.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	var deps *runtimeDependencies

	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		deps = &runtimeDependencies{
			products:    store.Products,
			customers:   store.Customers,
			orders:      store.Orders,
			carts:       store.Carts,
			payments:    store.Payments,
			shipments:   store.Shipments,
			reviews:     store.Reviews,
			timeline:    store.Timeline,
			outbox:      store.Outbox,
			idempotency: store.Idempotency,
			tx:          store,
		}
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres dsn is required for postgres storage")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		deps = &runtimeDependencies{
			products:    postgres.NewProductRepository(store),
			customers:   postgres.NewCustomerRepository(store),
			orders:      postgres.NewOrderRepository(store),
			carts:       postgres.NewCartRepository(store),
			payments:    postgres.NewPaymentRepository(store),
			shipments:   postgres.NewShipmentRepository(store),
			reviews:     postgres.NewReviewRepository(store),
			timeline:    postgres.NewTimelineRepository(store),
			outbox:      postgres.NewOutboxRepository(store),
			idempotency: postgres.NewIdempotencyRepository(store),
			tx:          store,
			pgStore:     store,
		}
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres storage")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	switch cfg.CartDriver {
	case "":
	case CartDriverRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			deps.close(logger)
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		deps.carts = redisstore.NewCartRepository(client, cfg.CartTTL)
		deps.redisClient = client
		logger.WithField("addr", cfg.RedisAddr).Info("using redis carts")
	default:
		deps.close(logger)
		return nil, fmt.Errorf("unsupported cart driver %q", cfg.CartDriver)
	}

	return deps, nil
}

// registerHealthChecks добавляет проверки внешних хранилищ.
func (d *runtimeDependencies) registerHealthChecks(h *health.Handler) {
	if d.pgStore != nil {
		h.Register("postgres", true, health.PingCheck(d.pgStore))
	}
	if d.redisClient != nil {
		client := d.redisClient
		h.Register("redis", false, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil {
		return
	}
	if d.redisClient != nil {
		if err := d.redisClient.Close(); err != nil {
			logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if d.pgStore != nil {
		if err := d.pgStore.Close(); err != nil {
			logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}

// Dependencies — сервисы приложения поверх выбранного хранилища.
type Dependencies struct {
	Engine    *ordering.Engine
	Accounts  *account.Service
	Catalog   *catalog.Service
	Carts     *cart.Service
	Payments  *payment.Recorder
	Shipments *tracking.Tracker
	Reviews   *review.Service
	Tokens    *auth.TokenManager

	Outbox      domain.OutboxRepository
	Idempotency domain.IdempotencyRepository
	Logger      *log.Entry
}

// newDependencies собирает сервисы. Метрики регистрируются в registerer.
func newDependencies(rt *runtimeDependencies, cfg Config, registerer prometheus.Registerer, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return nil, fmt.Errorf("init token manager: %w", err)
	}

	engine := ordering.NewEngine(rt.products, rt.customers, rt.orders,
		ordering.WithTransactor(rt.tx),
		ordering.WithOutbox(rt.outbox),
		ordering.WithTimeline(rt.timeline),
		ordering.WithCurrency(cfg.Currency),
		ordering.WithMetrics(metrics.NewOrderMetricsWithRegisterer(registerer)),
		ordering.WithLogger(logger.WithField("component", "ordering")),
	)

	accounts := account.NewService(rt.customers, auth.NewPasswordHasher(0), tokens, logger.WithField("component", "account"),
		account.WithAdminEmails(cfg.adminEmailList()...))

	return &Dependencies{
		Engine:    engine,
		Accounts:  accounts,
		Catalog:   catalog.NewService(rt.products, logger.WithField("component", "catalog")),
		Carts:     cart.NewService(rt.carts, rt.products, engine, logger.WithField("component", "cart")),
		Payments:  payment.NewRecorder(rt.payments, engine, rt.tx, logger.WithField("component", "payment")),
		Shipments: tracking.NewTracker(rt.shipments, engine, rt.tx, logger.WithField("component", "tracking")),
		Reviews:   review.NewService(rt.reviews, rt.products, logger.WithField("component", "review")),
		Tokens:    tokens,

		Outbox:      rt.outbox,
		Idempotency: rt.idempotency,
		Logger:      logger,
	}, nil
}

// RouterConfig связывает сервисы с REST API.
func (d *Dependencies) RouterConfig(cfg Config, httpMetrics *metrics.HTTPMetrics) httpapi.Config {
	return httpapi.Config{
		Accounts:       d.Accounts,
		Catalog:        d.Catalog,
		Carts:          d.Carts,
		Orders:         d.Engine,
		Payments:       d.Payments,
		Shipments:      d.Shipments,
		Reviews:        d.Reviews,
		Tokens:         d.Tokens,
		Idempotency:    d.Idempotency,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Metrics:        httpMetrics,
		Logger:         d.Logger.WithField("component", "http"),
	}
}
