package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sync/internal/checkpoint"
	"github.com/ajitpratap0/nebula-sync/internal/pipeline"
	"github.com/ajitpratap0/nebula-sync/pkg/connectors/registry"
	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/logger"
	"github.com/ajitpratap0/nebula-sync/pkg/metrics"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-sync/pkg/observability"
)

const shutdownTimeout = 10 * time.Second

func newRunCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a sync",
		Long: `Run a sync that reads JSON lines from --input (stdin by default) and
loads the streams of --catalog into the configured destination.

Example:
  source-connector read | nebula-sync run --config sync.yaml --catalog catalog.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), v, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	bindFlags(cmd, v)
	cmd.Flags().String(flagInput, "-", "Path of the input stream ('-' reads stdin)")
	_ = v.BindPFlag(flagInput, cmd.Flags().Lookup(flagInput))
	return cmd
}

func runSync(ctx context.Context, v *viper.Viper, stdin io.Reader, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Encoding:    cfg.Logging.Encoding,
	}); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "failed to initialize logger")
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get().With(
		zap.String("component", "nebula-sync-cli"),
		zap.String("sync", cfg.Name),
		zap.String("destination", cfg.Destination.Type),
	)

	catalogPath := v.GetString(flagCatalog)
	if catalogPath == "" {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "--catalog is required")
	}
	catalog, err := loadCatalog(catalogPath)
	if err != nil {
		return err
	}

	input := stdin
	if path := v.GetString(flagInput); path != "" && path != "-" {
		f, err := os.Open(path) //nolint:gosec // input path is supplied by the operator
		if err != nil {
			return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to open input").
				WithDetail("path", path)
		}
		defer f.Close()
		input = f
	}

	if cfg.Observability.EnableTracing {
		tracing := observability.DefaultTracingConfig()
		tracing.ServiceVersion = version
		tracing.SamplingRate = cfg.Observability.TracingSampleRate
		if err := observability.InitTracing(tracing); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := observability.Shutdown(shutdownCtx); err != nil {
				log.Warn("failed to shutdown tracing", zap.Error(err))
			}
		}()
	}

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		stop := serveMetrics(addr, log)
		defer stop()
	}

	writer, err := registry.CreateDestination(cfg.Destination, log)
	if err != nil {
		return err
	}

	job, err := pipeline.NewSync(cfg, catalog, writer, input, checkpoint.NewStdoutOutput(stdout), log)
	if err != nil {
		return err
	}

	ctx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx = context.WithValue(ctx, logger.ConnectorKey, cfg.Destination.Type)

	log.Info("starting sync",
		zap.Int("streams", len(catalog.Streams)),
		zap.Int64("record_batch_size_bytes", cfg.RecordBatchSizeBytes),
		zap.Duration("max_checkpoint_flush_interval", cfg.MaxCheckpointFlushInterval))
	start := time.Now()

	if err := job.Run(ctx); err != nil {
		log.Error("sync failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return err
	}
	log.Info("sync completed successfully", zap.Duration("duration", time.Since(start)))
	return nil
}

func loadCatalog(path string) (destination.Catalog, error) {
	f, err := os.Open(path) //nolint:gosec // catalog path is supplied by the operator
	if err != nil {
		return destination.Catalog{}, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "failed to open catalog").
			WithDetail("path", path)
	}
	defer f.Close()
	return destination.ParseCatalog(f)
}

// serveMetrics exposes the prometheus registry on addr and returns a
// function that stops the server.
func serveMetrics(addr string, log *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("metrics server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
