package checkpoint

import (
	"context"
	"io"
	"sync"

	"github.com/ajitpratap0/nebula-sync/pkg/json"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

// Output receives checkpoints once they are durable
type Output interface {
	Emit(ctx context.Context, cp Checkpoint, recordCount int64) error
}

// StdoutOutput writes STATE protocol lines to a writer, normally os.Stdout
type StdoutOutput struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdoutOutput creates an output writing to w
func NewStdoutOutput(w io.Writer) *StdoutOutput {
	return &StdoutOutput{w: w}
}

// Emit writes one STATE line
func (o *StdoutOutput) Emit(_ context.Context, cp Checkpoint, recordCount int64) error {
	line, err := json.MarshalLine(NewStateMessage(cp, recordCount))
	if err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeData, "failed to encode state message").
			WithDetail("stream", cp.Stream.String())
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.w.Write(line); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to write state message")
	}
	return nil
}
