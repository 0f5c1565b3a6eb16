// Package app assembles the capturecore process from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"capturecore/internal/adapters/httpapi"
	"capturecore/internal/blob"
	"capturecore/internal/config"
	"capturecore/internal/core"
	"capturecore/internal/platform/logging"
	capotel "capturecore/internal/platform/otel"
	"capturecore/pkg/domain"
)

// ServiceName identifies the process in logs and traces.
const ServiceName = "capturecore"

const defaultShutdownTimeout = 10 * time.Second

// App is a fully wired capturecore instance.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Service *core.Service
	Metrics *prometheus.Registry
	Handler http.Handler

	store         core.PersistentStore
	traceShutdown func(context.Context) error
}

// New wires logging, tracing, persistence, blob storage, the service and the
// HTTP routes described by cfg. Log records go to logOut (stderr when nil).
func New(ctx context.Context, cfg config.Config, logOut io.Writer) (*App, error) {
	logger, err := logging.New(cfg.LogFormat, cfg.LogLevel, logOut)
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	traceShutdown, err := capotel.Setup(ctx, ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("configure tracing: %w", err)
	}

	store, err := core.OpenPersistentStore(ctx, core.StorageConfig{
		Driver:      cfg.StorageDriver,
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
	})
	if err != nil {
		_ = traceShutdown(ctx)
		return nil, fmt.Errorf("open registry store: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, store: store, traceShutdown: traceShutdown}
	if err := a.wire(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config
	blobs, err := blob.Open(ctx, blob.Config{
		Driver: cfg.BlobDriver,
		FSRoot: cfg.BlobFSRoot,
		S3: blob.S3Config{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			SessionToken:    cfg.S3.SessionToken,
			PathStyle:       cfg.S3.PathStyle,
		},
	})
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	a.Metrics = prometheus.NewRegistry()
	a.Metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := core.NewPrometheusMetricsRecorder(a.Metrics)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	a.Service = core.NewService(a.store, blobs,
		core.WithLogger(a.Logger),
		core.WithMetricsRecorder(recorder),
		core.WithTracer(core.NewOTelTracer(otel.GetTracerProvider())),
		core.WithDirectUploads(cfg.DirectUploads, cfg.PresignExpiry),
	)

	fixtures, err := a.fixtures()
	if err != nil {
		return err
	}
	if _, err := a.Service.SeedPatients(ctx, fixtures); err != nil {
		return fmt.Errorf("seed patients: %w", err)
	}

	api := httpapi.NewHandler(a.Service, a.Logger)
	api.PublicBaseURL = cfg.PublicBaseURL
	api.MaxChunkBytes = cfg.MaxChunkBytes

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Metrics, promhttp.HandlerOpts{Registry: a.Metrics}))
	mux.Handle("/", api)
	a.Handler = mux

	a.Logger.Info("capturecore wired",
		"storage_driver", cfg.StorageDriver,
		"blob_driver", string(blobs.Driver()),
		"direct_uploads", cfg.DirectUploads,
		"tracing", cfg.OTelEndpoint != "")
	return nil
}

func (a *App) fixtures() ([]domain.Patient, error) {
	if a.Config.SeedFile == "" {
		return core.DefaultPatients(), nil
	}
	seeds, err := config.LoadSeedPatients(a.Config.SeedFile)
	if err != nil {
		return nil, err
	}
	patients := make([]domain.Patient, 0, len(seeds))
	for _, s := range seeds {
		patients = append(patients, domain.Patient{ID: s.ID, Name: s.Name})
	}
	return patients, nil
}

// Run listens on Config.HTTPAddr and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.Config.HTTPAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve handles requests on ln until ctx is cancelled, then drains in-flight
// requests within Config.ShutdownTimeout.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(a.Logger.Handler(), slog.LevelWarn),
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	a.Logger.Info("http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	timeout := a.Config.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	a.Logger.Info("http server shutting down", "timeout", timeout.String())
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// Close flushes traces and releases the registry store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.traceShutdown != nil {
		if err := a.traceShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close registry store: %w", err))
		}
	}
	return errors.Join(errs...)
}
