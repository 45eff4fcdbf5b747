package destination

import "context"

// Writer is implemented by a destination connector. It creates one
// StreamLoader per catalog stream.
type Writer interface {
	// Setup runs once before any stream is opened
	Setup(ctx context.Context) error
	// CreateStreamLoader returns the loader for stream. It must not block.
	CreateStreamLoader(stream Stream) (StreamLoader, error)
	// Teardown runs once after every stream is closed. failure is nil on
	// success, or the stream or sync failure otherwise.
	Teardown(ctx context.Context, failure error) error
}

// StreamLoader moves the records of one stream into the destination.
type StreamLoader interface {
	Stream() Stream
	Start(ctx context.Context) error
	// ProcessRecords consumes the records of one spilled file and returns the
	// resulting batch. totalSizeBytes is the input size of those records.
	ProcessRecords(ctx context.Context, records RecordIterator, totalSizeBytes int64) (Batch, error)
	// ProcessBatch advances a batch returned earlier. It is called until the
	// batch reports Complete.
	ProcessBatch(ctx context.Context, batch Batch) (Batch, error)
	// Close ends the stream. failure is nil when every batch completed.
	Close(ctx context.Context, failure error) error
}
