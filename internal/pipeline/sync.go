package pipeline

import (
	"context"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/nebula-sync/internal/checkpoint"
	"github.com/ajitpratap0/nebula-sync/internal/clocks"
	"github.com/ajitpratap0/nebula-sync/internal/ingest"
	"github.com/ajitpratap0/nebula-sync/internal/queue"
	"github.com/ajitpratap0/nebula-sync/internal/spill"
	"github.com/ajitpratap0/nebula-sync/internal/state"
	"github.com/ajitpratap0/nebula-sync/pkg/compression"
	"github.com/ajitpratap0/nebula-sync/pkg/config"
	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/logger"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-sync/pkg/observability"
)

// Sync runs one sync: it reads the input protocol, drives every stream
// through the destination writer and emits durable checkpoints.
type Sync struct {
	cfg     *config.SyncConfig
	catalog destination.Catalog
	writer  destination.Writer
	input   io.Reader
	output  checkpoint.Output
	clock   clocks.Clock
	logger  *zap.Logger
}

// SyncOption customizes a Sync
type SyncOption func(*Sync)

// WithClock replaces the system clock used for checkpoint timing
func WithClock(clock clocks.Clock) SyncOption {
	return func(s *Sync) {
		s.clock = clock
	}
}

// NewSync validates cfg and catalog and creates a sync
func NewSync(
	cfg *config.SyncConfig,
	catalog destination.Catalog,
	writer destination.Writer,
	input io.Reader,
	output checkpoint.Output,
	log *zap.Logger,
	opts ...SyncOption,
) (*Sync, error) {
	if cfg == nil {
		cfg = config.DefaultSyncConfig()
	}
	if cfg.RecordBatchSizeBytes <= 0 {
		return nil, nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "record_batch_size_bytes must be positive")
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	if writer == nil {
		return nil, nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "destination writer is required")
	}
	if log == nil {
		log = logger.Get()
	}

	s := &Sync{
		cfg:     cfg,
		catalog: catalog,
		writer:  writer,
		input:   input,
		output:  output,
		clock:   clocks.NewSystemClock(),
		logger:  log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run executes the sync. It returns nil when every stream completed, the
// joined stream failures when some streams failed, or the sync failure.
func (s *Sync) Run(ctx context.Context) (err error) {
	syncID := uuid.NewString()
	ctx = context.WithValue(ctx, logger.SyncIDKey, syncID)
	log := logger.FromContext(ctx, s.logger)

	ctx, span := observability.NewSpan(ctx, "sync")
	span.SetAttribute("sync.name", s.cfg.Name)
	span.SetAttribute("sync.streams", len(s.catalog.Streams))
	defer func() { span.EndWithError(err) }()

	alg, err := compression.ParseAlgorithm(s.cfg.Spill.Compression)
	if err != nil {
		return err
	}
	provider, err := spill.NewLocalProvider(s.cfg.Spill.Dir, alg, log)
	if err != nil {
		return err
	}

	syncManager := state.NewSyncManager(s.catalog)
	queues := queue.NewStreamQueues(syncManager.Streams(), s.cfg.Spill.QueueCapacity)
	checkpoints := checkpoint.NewManager(syncManager, s.output, s.clock, log)
	events := checkpoint.NewBroadcaster()
	runner := NewTaskRunner(log)

	factory := &DefaultTaskFactory{
		Config: FactoryConfig{
			RecordBatchSizeBytes:       s.cfg.RecordBatchSizeBytes,
			MaxCheckpointFlushInterval: s.cfg.MaxCheckpointFlushInterval,
		},
		Writer:      s.writer,
		Catalog:     s.catalog,
		SyncManager: syncManager,
		Queues:      queues,
		Spill:       provider,
		Checkpoints: checkpoints,
		Events:      events,
		Clock:       s.clock,
		Logger:      log,
	}
	launcher := NewDestinationTaskLauncher(
		LauncherConfig{MaxCheckpointFlushInterval: s.cfg.MaxCheckpointFlushInterval},
		runner, factory, syncManager, checkpoints, log,
	)

	log.Info("starting sync", zap.Stringer("config", s.cfg), zap.Int("streams", len(s.catalog.Streams)))

	// The reader is not part of the group: a blocked read cannot be
	// interrupted, so a failed sync does not wait for it.
	reader := ingest.NewReader(s.input, syncManager, queues, checkpoints, log)
	readDone := make(chan error, 1)
	go func() {
		readErr := reader.Run(ctx)
		if readErr != nil {
			launcher.ExceptionHandler().HandleSyncFailure(ctx, readErr)
		}
		readDone <- readErr
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(gctx)
	})
	g.Go(func() error {
		if err := launcher.Start(gctx); err != nil {
			launcher.Stop()
			return err
		}
		select {
		case <-launcher.Done():
			return nil
		case <-gctx.Done():
			launcher.Stop()
			return gctx.Err()
		}
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := launcher.Err(); err != nil {
		return err
	}

	// trailing state messages may follow the last stream completion
	select {
	case readErr := <-readDone:
		if readErr != nil {
			return readErr
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := checkpoints.FlushReadyCheckpointMessages(ctx); err != nil {
		return err
	}

	stats := reader.Stats()
	log.Info("sync completed",
		zap.Int64("records", stats.Records),
		zap.Int64("states", stats.States),
		zap.Int("pending_checkpoints", checkpoints.PendingCount()))
	return nil
}
