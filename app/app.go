package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/searchktools/archive-server/config"
	"github.com/searchktools/archive-server/core"
	"github.com/searchktools/archive-server/core/extract"
	"github.com/searchktools/archive-server/core/http"
	"github.com/searchktools/archive-server/core/middleware"
	"github.com/searchktools/archive-server/core/pools"
	"github.com/searchktools/archive-server/core/respond"
)

// ServiceName names the process in logs and trace resources.
const ServiceName = "archive-server"

// ShutdownTimeout bounds graceful shutdown after a stop signal.
var ShutdownTimeout = 10 * time.Second

const contentTypeMetrics = "text/plain; version=0.0.4; charset=utf-8"

// App wires configuration, logging, metrics and tracing around an engine.
type App struct {
	cfg      *config.Config
	engine   *core.Engine
	logger   *slog.Logger
	registry *prometheus.Registry
	tracer   *sdktrace.TracerProvider
}

// NewLogger returns a charm-backed slog logger writing to w. Production
// environments get JSON lines; everything else gets coloured text.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	opts := log.Options{
		Level:           level,
		Prefix:          ServiceName,
		ReportTimestamp: true,
	}
	if cfg.IsProduction() {
		opts.Formatter = log.JSONFormatter
	}
	return slog.New(log.NewWithOptions(w, opts))
}

// New creates an application instance. A nil logger selects NewLogger on
// stderr.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = NewLogger(cfg, os.Stderr)
	}
	return NewWithEngine(cfg, logger, core.NewEngine())
}

// NewWithEngine creates an application instance around a pre-configured
// engine.
func NewWithEngine(cfg *config.Config, logger *slog.Logger, engine *core.Engine) (*App, error) {
	a := &App{cfg: cfg, engine: engine, logger: logger}

	engine.Use(middleware.RequestID(), middleware.Logger(logger))

	if cfg.Tracing {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("tracing exporter: %w", err)
		}
		a.tracer = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(resource.NewSchemaless(
				attribute.String("service.name", ServiceName),
				attribute.String("deployment.environment", cfg.Env),
			)),
		)
		engine.Use(middleware.NewTracing(a.tracer))
	}

	if cfg.Metrics {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m, err := middleware.NewMetrics(a.registry)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		engine.Use(m)
		engine.GET("/metrics", a.serveMetrics)
	}

	return a, nil
}

// Engine returns the underlying engine for route registration
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Registry returns the metrics registry, or nil when metrics are off.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

func (a *App) serveMetrics(extract.Args) (respond.Responder, error) {
	families, err := a.registry.Gather()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return nil, err
		}
	}
	return respond.ContentType(contentTypeMetrics, respond.Bytes(buf.Bytes())), nil
}

func (a *App) serverOptions() []core.Option {
	return []core.Option{
		core.WithLogger(a.logger),
		core.WithWorkers(a.cfg.Workers),
		core.WithRecvTimeout(a.cfg.RecvTimeout),
		core.WithReadTimeout(a.cfg.ReadTimeout),
		core.WithWriteTimeout(a.cfg.WriteTimeout),
		core.WithIdleTimeout(a.cfg.IdleTimeout),
		core.WithLimits(http.Limits{
			MaxHeaderBytes: a.cfg.MaxHeaderBytes,
			MaxBodyBytes:   a.cfg.MaxBodyBytes,
		}),
		core.WithCompression(a.cfg.Compress),
	}
}

// Serve builds the engine and serves ln until ctx is done, then shuts the
// server down gracefully.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := core.NewServer(a.engine.Build(), a.serverOptions()...)

	a.logger.Info("starting "+ServiceName,
		"addr", ln.Addr().String(),
		"env", a.cfg.Env,
		"workers", a.cfg.Workers,
	)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	var serveErr error
	select {
	case err := <-served:
		serveErr = err
	case <-ctx.Done():
		a.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	errs := []error{srv.Shutdown(shutdownCtx)}
	if serveErr == nil {
		serveErr = <-served
	}
	if !errors.Is(serveErr, core.ErrServerClosed) {
		errs = append(errs, serveErr)
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(shutdownCtx))
	}
	return errors.Join(errs...)
}

// Run listens on the configured address and serves until SIGINT or
// SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pools.GCSettings{Percent: a.cfg.GCPercent, MemoryLimit: a.cfg.MemoryLimit}.Apply()

	ln, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Addr(), err)
	}
	return a.Serve(ctx, ln)
}
