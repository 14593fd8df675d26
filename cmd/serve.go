package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/distml/trainwatch/internal/api"
	"github.com/distml/trainwatch/internal/config"
	"github.com/distml/trainwatch/internal/export"
	"github.com/distml/trainwatch/internal/logging"
	"github.com/distml/trainwatch/internal/metrics"
	"github.com/distml/trainwatch/internal/monitor"
	"github.com/distml/trainwatch/internal/notify"
	"github.com/distml/trainwatch/internal/storage/memory"
	"github.com/distml/trainwatch/internal/storage/postgres"
	"github.com/distml/trainwatch/internal/store"
	"github.com/distml/trainwatch/internal/telemetry"
	"github.com/distml/trainwatch/internal/telemetry/sinks"
)

const shutdownTimeout = 15 * time.Second

// newServeCmd creates the 'serve' subcommand running the HTTP service.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the telemetry aggregation service",
		Long: `Runs the HTTP service that accepts progress records from training
workers, batches them through the ingestion hub, persists them, and serves
averaged metrics curves to operators.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics.Init()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := buildRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	blobs, closeBlobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBlobs()
	exporter := export.NewCurveExporter(blobs, cfg.Export.Prefix, logger)

	notifier, err := buildNotifier(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := notifier.Close(); cerr != nil {
			logger.Warn("failed to close notifier", zap.Error(cerr))
		}
	}()

	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("init prometheus sink: %w", err)
	}
	snapshots := sinks.NewSnapshotSink()
	hub := telemetry.NewHub(telemetry.HubConfig{
		BufferSize:     cfg.Hub.BufferSize,
		MaxBatchEvents: cfg.Hub.MaxBatchEvents,
		MaxBatchWait:   cfg.Hub.MaxBatchWait(),
		SinkTimeout:    cfg.Hub.SinkTimeout(),
		Logger:         logger,
	},
		snapshots,
		sinks.NewStoreSink(repo, logger),
		promSink,
		sinks.NewLogSink(logger.Named("ingest")),
	)

	server := api.NewServer(repo, hub, snapshots, exporter, notifier, cfg, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Monitor.Enabled {
		mon := monitor.New(snapshots, repo, cfg.Monitor.Interval(), logger.Named("monitor"))
		go mon.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if serveErr := httpServer.ListenAndServe(); !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown incomplete", zap.Error(err))
	}
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Warn("hub close incomplete", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

func buildRepository(ctx context.Context, cfg config.Config) (store.RunRepository, func(), error) {
	switch cfg.DB.Provider {
	case "postgres":
		repo, err := postgres.NewRunStore(ctx, postgres.RunStoreConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres store: %w", err)
		}
		return repo, repo.Close, nil
	case "memory":
		return memory.NewRunStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown db.provider %q", cfg.DB.Provider)
	}
}

func buildBlobStore(ctx context.Context, cfg config.Config) (export.BlobStore, func(), error) {
	switch cfg.Export.Provider {
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("init gcs client: %w", err)
		}
		blobs, err := export.NewGCSStore(client, cfg.Export.GCSBucket)
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("init gcs store: %w", err)
		}
		return blobs, func() { _ = client.Close() }, nil
	case "local":
		blobs, err := export.NewLocalStore(cfg.Export.LocalDir)
		if err != nil {
			return nil, nil, fmt.Errorf("init local store: %w", err)
		}
		return blobs, func() {}, nil
	case "noop":
		return export.NoopStore{}, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown export.provider %q", cfg.Export.Provider)
	}
}

func buildNotifier(ctx context.Context, cfg config.Config) (notify.Notifier, error) {
	switch cfg.Notify.Provider {
	case "pubsub":
		notifier, err := notify.NewPubSub(ctx, cfg.Notify.ProjectID, cfg.Notify.TopicName)
		if err != nil {
			return nil, fmt.Errorf("init pubsub notifier: %w", err)
		}
		return notifier, nil
	case "noop":
		return notify.Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown notify.provider %q", cfg.Notify.Provider)
	}
}
