package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sync/internal/spill"
	"github.com/ajitpratap0/nebula-sync/internal/state"
	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

// ProcessRecordsTask feeds one spilled file to the stream loader and deletes
// the file afterwards
type ProcessRecordsTask struct {
	stream      destination.Descriptor
	env         destination.BatchEnvelope[*destination.SpilledFile]
	provider    spill.Provider
	syncManager *state.SyncManager
	launcher    Launcher
	logger      *zap.Logger
}

func (t *ProcessRecordsTask) Name() string                   { return TaskProcessRecords }
func (t *ProcessRecordsTask) Stream() destination.Descriptor { return t.stream }

func (t *ProcessRecordsTask) Execute(ctx context.Context) error {
	file := t.env.Batch
	defer func() {
		if err := t.provider.Delete(file.Path); err != nil {
			t.logger.Warn("failed to delete spill file", zap.String("path", file.Path), zap.Error(err))
		}
	}()

	sm, err := t.syncManager.StreamManager(t.stream)
	if err != nil {
		return err
	}
	if sm.Failure() != nil {
		return nil
	}

	loader, err := t.syncManager.GetOrAwaitStreamLoader(ctx, t.stream)
	if err != nil {
		return err
	}

	reader, err := t.provider.OpenFile(file)
	if err != nil {
		return err
	}
	batch, err := loader.ProcessRecords(ctx, reader, file.TotalSizeBytes)
	closeErr := reader.Close()
	if err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeData, "stream loader failed to process records").
			WithDetail("stream", t.stream.String()).
			WithDetail("path", file.Path)
	}
	if err := reader.Err(); err != nil {
		return err
	}
	if closeErr != nil {
		return nebulaerrors.Wrap(closeErr, nebulaerrors.ErrorTypeFile, "failed to close spill file").
			WithDetail("path", file.Path)
	}
	if batch == nil {
		return nebulaerrors.New(nebulaerrors.ErrorTypeInternal, "stream loader returned no batch").
			WithDetail("stream", t.stream.String())
	}

	return t.launcher.HandleNewBatch(ctx, t.stream, destination.WithBatch(t.env, batch).Erase())
}

// ProcessBatchTask advances a batch that is not yet Complete
type ProcessBatchTask struct {
	stream      destination.Descriptor
	env         destination.BatchEnvelope[destination.Batch]
	syncManager *state.SyncManager
	launcher    Launcher
}

func (t *ProcessBatchTask) Name() string                   { return TaskProcessBatch }
func (t *ProcessBatchTask) Stream() destination.Descriptor { return t.stream }

func (t *ProcessBatchTask) Execute(ctx context.Context) error {
	loader, err := t.syncManager.GetOrAwaitStreamLoader(ctx, t.stream)
	if err != nil {
		return err
	}
	batch, err := loader.ProcessBatch(ctx, t.env.Batch)
	if err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeStream, "stream loader failed to process batch").
			WithDetail("stream", t.stream.String())
	}
	if batch == nil {
		return nebulaerrors.New(nebulaerrors.ErrorTypeInternal, "stream loader returned no batch").
			WithDetail("stream", t.stream.String())
	}
	return t.launcher.HandleNewBatch(ctx, t.stream, destination.WithBatch(t.env, batch))
}
