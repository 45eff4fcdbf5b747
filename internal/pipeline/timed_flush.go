package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sync/internal/checkpoint"
	"github.com/ajitpratap0/nebula-sync/internal/clocks"
	"github.com/ajitpratap0/nebula-sync/pkg/metrics"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

// TimedForcedCheckpointFlushTask bounds checkpoint latency. After waiting
// delay it checks how long ago checkpoints were last flushed. Once that
// reaches the maximum interval it asks every spill task to hand off its open
// file, then schedules its successor.
type TimedForcedCheckpointFlushTask struct {
	delay       time.Duration
	maxInterval time.Duration
	clock       clocks.Clock
	checkpoints CheckpointTracker
	events      checkpoint.EventQueue
	launcher    Launcher
	logger      *zap.Logger
}

func (t *TimedForcedCheckpointFlushTask) Name() string { return TaskTimedForcedCheckpointFlush }

func (t *TimedForcedCheckpointFlushTask) Execute(ctx context.Context) error {
	select {
	case <-t.clock.After(t.delay):
	case <-ctx.Done():
		return nil
	case <-t.launcher.Stopped():
		return nil
	}

	since := t.clock.Now().Sub(t.checkpoints.LastFlushTime())
	next := t.maxInterval
	if since < t.maxInterval {
		next = t.maxInterval - since
	} else {
		event := checkpoint.ForceFlushEvent{Indexes: t.checkpoints.CheckpointIndexes()}
		if err := t.events.Publish(ctx, event); err != nil {
			if nebulaerrors.IsQueueClosed(err) {
				return nil
			}
			return err
		}
		metrics.ForceFlushEvents.Inc()
		t.logger.Info("forced checkpoint flush",
			zap.Duration("since_last_flush", since),
			zap.Int("streams", len(event.Indexes)))
	}

	if err := t.launcher.ScheduleNextForceFlushAttempt(ctx, next); err != nil {
		if nebulaerrors.IsQueueClosed(err) {
			return nil
		}
		return err
	}
	return nil
}
