// Command monitoring-demo is a small gin service instrumented through the
// registry. The backend is chosen by configuration.
//
// Environment Variables:
//
//	MONITORING_SERVICE_NAME                  - service name (default: monitoring-service)
//	MONITORING_INSTRUMENTATION_BACKEND       - none, otel, redis or prometheus
//	MONITORING_TELEMETRY_PROFILE             - development, staging, production
//	OTEL_EXPORTER_OTLP_ENDPOINT              - OpenTelemetry collector endpoint
//	MONITORING_REDIS_URL                     - Redis URL for the redis backend
//	MONITORING_REDIS_MAX_ATTEMPTS            - XADD attempts per record (default: 3)
//	MONITORING_HTTP_ADDRESS                  - listen address (default: :8080)
//	MONITORING_LOGGING_LEVEL                 - debug, info, warn, error
//	MONITORING_CONFIG_FILE                   - optional JSON or YAML config file
//
// Example Usage:
//
//	export MONITORING_INSTRUMENTATION_BACKEND=prometheus
//	go run ./cmd/monitoring-demo
//	curl localhost:8080/
//	curl localhost:8080/metrics
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itsneelabh/gomind-monitoring/core"
	"github.com/itsneelabh/gomind-monitoring/ginmonitor"
	"github.com/itsneelabh/gomind-monitoring/httpmonitor"
	"github.com/itsneelabh/gomind-monitoring/instrumentation"
	"github.com/itsneelabh/gomind-monitoring/registry"
	"github.com/itsneelabh/gomind-monitoring/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("monitoring-demo: %v", err)
	}
}

func run() error {
	cfg, err := core.NewConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, err := core.NewProductionLogger(cfg.Logging, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New(registry.WithLogger(logger))
	backend, err := setupBackend(ctx, cfg, reg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := backend.shutdown(shutdownCtx); err != nil {
			logger.Warn("Instrumentation backend shutdown error", map[string]interface{}{"error": err})
		}
	}()

	if _, err := instrumentation.AddInstrumentation(reg,
		instrumentation.WithSourcePropertyName(cfg.Instrumentation.SourcePropertyName),
	); err != nil {
		return err
	}

	home, err := newHomeController(reg)
	if err != nil {
		return err
	}
	router, err := newRouter(cfg, reg, logger, home, backend)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           httpmonitor.LoggingMiddleware(logger, cfg.Logging.Level == "debug")(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", map[string]interface{}{
			"address": cfg.HTTP.Address,
			"backend": cfg.Instrumentation.Backend,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// backend is the instrumentation backend selected by configuration.
type backend struct {
	health   []telemetry.HealthReporter
	metrics  http.Handler // set for prometheus
	tracing  bool
	shutdown func(context.Context) error
}

func setupBackend(ctx context.Context, cfg *core.Config, reg *registry.Registry, logger core.Logger) (*backend, error) {
	b := &backend{shutdown: func(context.Context) error { return nil }}
	sinkOpts := []telemetry.SinkOption{
		telemetry.WithLogger(logger),
		telemetry.WithCategoryProperty(cfg.Instrumentation.SourcePropertyName),
	}

	switch cfg.Instrumentation.Backend {
	case core.BackendOTel:
		provider, err := telemetry.NewProvider(ctx, telemetry.FromCoreConfig(cfg))
		if err != nil {
			return nil, err
		}
		sinks, err := telemetry.AddOTelInstrumentation(reg, provider, sinkOpts...)
		if err != nil {
			_ = provider.Shutdown(ctx)
			return nil, err
		}
		b.health = append(b.health, sinks)
		b.tracing = true
		b.shutdown = provider.Shutdown

	case core.BackendRedis:
		sinks, err := telemetry.NewRedisSinksFromConfig(ctx, cfg.Redis, sinkOpts...)
		if err != nil {
			return nil, err
		}
		if err := telemetry.AddRedisInstrumentation(reg, sinks); err != nil {
			_ = sinks.Close()
			return nil, err
		}
		b.health = append(b.health, sinks)
		b.shutdown = func(context.Context) error { return sinks.Close() }

	case core.BackendPrometheus:
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		sinks, err := telemetry.NewPrometheusSinks(promReg, cfg.Prometheus.Namespace, cfg.Prometheus.MaxOperationNames, sinkOpts...)
		if err != nil {
			return nil, err
		}
		if err := telemetry.AddPrometheusInstrumentation(reg, sinks); err != nil {
			return nil, err
		}
		b.health = append(b.health, sinks)
		b.metrics = promhttp.HandlerFor(promReg, promhttp.HandlerOpts{Registry: promReg})
	}

	logger.Info("Instrumentation backend configured", map[string]interface{}{
		"backend": cfg.Instrumentation.Backend,
	})
	return b, nil
}

func newRouter(cfg *core.Config, reg *registry.Registry, logger core.Logger, home *homeController, b *backend) (*gin.Engine, error) {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// registered before the instrumentation middleware, so not observed
	router.GET("/health/instrumentation", gin.WrapF(telemetry.HealthHandler(b.health...)))
	if b.metrics != nil {
		router.GET("/metrics", gin.WrapH(b.metrics))
	}

	operations, err := instrumentation.Operations(reg)
	if err != nil {
		return nil, err
	}
	exceptions, err := instrumentation.Exceptions(reg)
	if err != nil {
		return nil, err
	}

	if b.tracing {
		router.Use(ginmonitor.Tracing(cfg.ServiceName))
	}
	router.Use(ginmonitor.ObservableActions(operations, ginmonitor.WithLogger(logger)))
	router.Use(ginmonitor.ReportErrors(exceptions))

	router.GET("/", home.Index)
	router.GET("/items/:id", home.Item)
	router.GET("/error", home.Fail)
	return router, nil
}
