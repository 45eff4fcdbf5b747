package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

func streamTask(name string, stream destination.Descriptor, err error) Task {
	return fakeStreamTask{&fakeTask{name: name, stream: &stream, err: err}}
}

func TestExceptionHandler_Routing(t *testing.T) {
	streamErr := nebulaerrors.New(nebulaerrors.ErrorTypeData, "malformed spilled record")
	syncErr := nebulaerrors.New(nebulaerrors.ErrorTypeSync, "failed to emit checkpoint")

	tests := []struct {
		name       string
		task       Task
		wantTasks  []string
		wantStream destination.Descriptor
		wantCause  error
	}{
		{
			name:       "stream task error fails the stream",
			task:       streamTask(TaskProcessRecords, users, streamErr),
			wantTasks:  []string{TaskFailStream},
			wantStream: users,
			wantCause:  streamErr,
		},
		{
			name:      "sync scoped error of a stream task fails the sync",
			task:      streamTask(TaskProcessRecords, users, syncErr),
			wantTasks: []string{TaskFailSync},
			wantCause: syncErr,
		},
		{
			name:      "non stream task error fails the sync",
			task:      &fakeTask{name: TaskSetup, err: assert.AnError},
			wantTasks: []string{TaskFailSync},
			wantCause: assert.AnError,
		},
		{
			name: "queue closed is dropped",
			task: streamTask(TaskSpillToDisk, users, nebulaerrors.ErrQueueClosed),
		},
		{
			name: "wrapped queue closed is dropped",
			task: &fakeTask{name: TaskTeardown, err: nebulaerrors.Wrap(nebulaerrors.ErrQueueClosed, nebulaerrors.ErrorTypeSync, "enqueue failed")},
		},
		{
			name: "cancellation is dropped",
			task: streamTask(TaskProcessBatch, orders, context.Canceled),
		},
		{
			name: "success routes nothing",
			task: streamTask(TaskProcessBatch, orders, nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := &recordingFactory{}
			handler := NewExceptionHandler(factory, newRecordingLauncher(), zap.NewNop())

			wrapped := handler.WithExceptionHandling(tt.task)
			assert.Equal(t, tt.task.Name(), wrapped.Name())
			_ = wrapped.Execute(context.Background())

			created := factory.Created()
			var names []string
			for _, c := range created {
				names = append(names, c.name)
			}
			assert.Equal(t, tt.wantTasks, names)

			if len(created) == 1 {
				assert.Equal(t, tt.wantStream, created[0].stream)
				assert.Equal(t, tt.wantCause, created[0].cause)
				// failure tasks run inline
				assert.Equal(t, 1, created[0].task.Executions())
			}
		})
	}
}

func TestExceptionHandler_WrapperKeepsStreamScope(t *testing.T) {
	handler := NewExceptionHandler(&recordingFactory{}, newRecordingLauncher(), zap.NewNop())

	wrapped := handler.WithExceptionHandling(streamTask(TaskSpillToDisk, orders, nil))
	st, ok := wrapped.(StreamTask)
	require.True(t, ok)
	assert.Equal(t, orders, st.Stream())

	_, ok = handler.WithExceptionHandling(&fakeTask{name: TaskSetup}).(StreamTask)
	assert.False(t, ok)
}

func TestExceptionHandler_FailureTaskErrorsAreOnlyLogged(t *testing.T) {
	factory := &recordingFactory{failErr: assert.AnError}
	handler := NewExceptionHandler(factory, newRecordingLauncher(), zap.NewNop())

	for _, task := range []Task{
		factory.NewFailStreamTask(nil, users, assert.AnError),
		factory.NewFailSyncTask(nil, assert.AnError),
	} {
		err := handler.WithExceptionHandling(task).Execute(context.Background())
		assert.ErrorIs(t, err, assert.AnError)
	}
	assert.Len(t, factory.Created(), 2)
}

func TestExceptionHandler_PanicFailsTheScope(t *testing.T) {
	factory := &recordingFactory{}
	handler := NewExceptionHandler(factory, newRecordingLauncher(), zap.NewNop())

	stream := users
	task := fakeStreamTask{&fakeTask{name: TaskProcessBatch, stream: &stream, run: func(context.Context) error {
		panic("loader exploded")
	}}}

	err := handler.WithExceptionHandling(task).Execute(context.Background())
	require.Error(t, err)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeInternal))

	created := factory.Created()
	require.Len(t, created, 1)
	assert.Equal(t, TaskFailStream, created[0].name)
}

func TestExceptionHandler_HandleSyncFailure(t *testing.T) {
	factory := &recordingFactory{}
	handler := NewExceptionHandler(factory, newRecordingLauncher(), zap.NewNop())

	handler.HandleSyncFailure(context.Background(), nebulaerrors.ErrQueueClosed)
	assert.Empty(t, factory.Created())

	handler.HandleSyncFailure(context.Background(), assert.AnError)
	created := factory.Created()
	require.Len(t, created, 1)
	assert.Equal(t, TaskFailSync, created[0].name)
	assert.Equal(t, assert.AnError, created[0].cause)
}
