package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.25.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andre-mobilemed/create-pdf-from-dicom-images/internal/api"
	"github.com/andre-mobilemed/create-pdf-from-dicom-images/internal/callback"
	"github.com/andre-mobilemed/create-pdf-from-dicom-images/internal/config"
	"github.com/andre-mobilemed/create-pdf-from-dicom-images/internal/dicomweb"
	"github.com/andre-mobilemed/create-pdf-from-dicom-images/internal/storage"
)

func initOtelProvider(ctx context.Context, serviceName, serviceVersion, otelEndpoint string) (shutdown func(context.Context) error, err error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTel resource: %w", err)
	}

	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to OTLP endpoint %s: %w", otelEndpoint, err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}
	bsp := trace.NewBatchSpanProcessor(traceExporter)
	tracerProvider := trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithSpanProcessor(bsp),
	)

	metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}
	meterProvider := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(metricExporter)),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	shutdown = func(ctx context.Context) error {
		var shutdownErr error
		if err := tracerProvider.Shutdown(ctx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("tracer provider shutdown failed: %w", err))
		}
		if err := meterProvider.Shutdown(ctx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("meter provider shutdown failed: %w", err))
		}
		if err := conn.Close(); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("grpc connection close failed: %w", err))
		}
		return shutdownErr
	}
	return shutdown, nil
}

// instrumentedClient builds an otelhttp-traced HTTP client with the given
// timeout.
func instrumentedClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(nil),
		Timeout:   timeout,
	}
}

func main() {
	logLevel := slog.LevelInfo
	if config.GetEnv("DEBUG", "false") == "true" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Configuration loaded",
		"wadoURL", cfg.WadoURL,
		"defaultMaxWorkers", cfg.DefaultMaxWorkers,
		"maxAllowedWorkers", cfg.MaxAllowedWorkers,
		"ipValidation", len(cfg.AllowedClientIPs) > 0)

	otelShutdown, err := initOtelProvider(ctx, cfg.OtelServiceName, cfg.OtelServiceVersion, cfg.OtelEndpoint)
	if err != nil {
		slog.Error("Failed to initialize OTel provider", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Error("OTel shutdown failed", "error", err)
		}
	}()

	// Job store: Postgres when configured, in-memory otherwise.
	var jobs storage.JobStore
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Failed to create database pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		store := storage.NewStore(pool)
		if err := store.Ping(ctx); err != nil {
			slog.Error("Database ping failed", "error", err)
			os.Exit(1)
		}
		jobs = store
		slog.Info("Using Postgres job store")
	} else {
		jobs = storage.NewMemStore()
		slog.Warn("DATABASE_URL not set, job status will not survive restarts")
	}

	wadoClient := dicomweb.NewClientWithHTTPClients(cfg.WadoURL,
		instrumentedClient(cfg.MetadataTimeout),
		instrumentedClient(cfg.InstanceTimeout))
	scheduler := dicomweb.NewScheduler(wadoClient)
	notifier := callback.NewNotifier(instrumentedClient(cfg.CallbackTimeout), cfg.CreateLogURL)
	handler := api.NewHandler(scheduler, notifier, jobs, cfg)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))
	router.Use(otelgin.Middleware(cfg.OtelServiceName))
	api.RegisterRoutes(router, handler)

	slog.Info("Starting server", "address", cfg.ListenAddress)
	srv := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: router,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server listen failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()
	slog.Info("Shutting down gracefully, press Ctrl+C again to force")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("Server exiting")
}
