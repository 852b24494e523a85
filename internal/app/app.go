// Package app собирает зависимости магазина и управляет жизненным циклом серверов.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// listeners — заранее открытые сокеты: ошибка адреса видна до старта серверов.
type listeners struct {
	http    net.Listener
	grpc    net.Listener
	metrics net.Listener
}

func listen(cfg Config) (*listeners, error) {
	var (
		l   listeners
		err error
	)
	if l.http, err = net.Listen("tcp", cfg.HTTPAddr); err != nil {
		return nil, fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}
	if l.grpc, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
		_ = l.http.Close()
		return nil, fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}
	if l.metrics, err = net.Listen("tcp", cfg.MetricsAddr); err != nil {
		_ = l.http.Close()
		_ = l.grpc.Close()
		return nil, fmt.Errorf("listen metrics %s: %w", cfg.MetricsAddr, err)
	}
	return &l, nil
}

// Run поднимает REST API, gRPC health, сервер метрик и фоновые воркеры.
// Возвращает nil после штатной остановки по отмене ctx.
func Run(ctx context.Context, cfg Config) error {
	return run(ctx, cfg, nil)
}

// run принимает ready, чтобы тесты узнали фактические адреса слушателей.
func run(ctx context.Context, cfg Config, ready func(*listeners)) error {
	logger := log.WithField("component", "app")
	build := version.Get()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rt, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.close(logger)

	deps, err := newDependencies(rt, cfg, registry, logger)
	if err != nil {
		return err
	}

	producer, err := initKafkaProducer(cfg, logger)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
	}
	defer closeKafka(producer, logger)
	events, dlq := outboxPublishers(producer, cfg, logger)

	healthHandler := healthcheck.NewHandler(build.Version)
	rt.registerHealthChecks(healthHandler)

	lis, err := listen(cfg)
	if err != nil {
		return err
	}

	apiSrv := &http.Server{
		Handler:           httpapi.NewRouter(deps.RouterConfig(cfg, metrics.NewHTTPMetrics(registry))),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	metricsSrv := &http.Server{
		Handler:           newMetricsMux(registry, healthHandler),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	grpcSrv, grpcHealth := newGRPCServer(registry, logger)

	outboxWorker := outbox.NewWorker(deps.Outbox, events,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetrics(registry)),
		outbox.WithDLQPublisher(dlq),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	cleanupWorker := idempotency.NewCleanupWorker(deps.Idempotency,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithMetrics(metrics.NewCleanupMetrics(registry)),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	logger.WithFields(log.Fields{
		"version":  build.String(),
		"http":     lis.http.Addr().String(),
		"grpc":     lis.grpc.Addr().String(),
		"metrics":  lis.metrics.Addr().String(),
		"storage":  cfg.StorageDriver,
		"currency": cfg.Currency,
	}).Info("storefront starting")
	if ready != nil {
		ready(lis)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := apiSrv.Serve(lis.http); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := metricsSrv.Serve(lis.metrics); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := grpcSrv.Serve(lis.grpc); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		outboxWorker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		cleanupWorker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		shutdownHTTP(apiSrv, logger)
		stopGRPC(grpcSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return nil
	})

	return g.Wait()
}

func newMetricsMux(registry *prometheus.Registry, healthHandler *healthcheck.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

// newGRPCServer отдаёт только grpc.health.v1 и reflection для оркестраторов.
func newGRPCServer(registry prometheus.Registerer, logger *log.Entry) (*grpc.Server, *grpchealth.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := registry.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	healthSrv := grpchealth.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, healthSrv)
	reflection.Register(srv)
	grpcMetrics.InitializeMetrics(srv)
	return srv, healthSrv
}

func stopGRPC(srv *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("grpc graceful stop timed out, forcing stop")
		srv.Stop()
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
