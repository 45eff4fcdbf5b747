// Package nebula is the root of nebula-sync, a destination sync engine.
//
// nebula-sync reads a source's protocol stream (RECORD, STATE and TRACE
// messages as JSON lines), buffers the records of every stream on local disk
// and hands the spilled files to a destination connector. A source checkpoint
// is written to stdout only after the destination has persisted every record
// read before it, so a restarted sync resumes from a state the destination
// already holds.
//
// # Architecture
//
// One sync run is a set of small tasks scheduled on a non-serializing task
// runner. A launcher reacts to task results and decides what runs next:
//
//	Setup -> OpenStream (per stream) -> ProcessRecords / ProcessBatch -> CloseStream -> Teardown
//	SpillToDisk (per stream, runs for the life of the stream)
//	TimedForcedCheckpointFlush (optional, reschedules itself)
//
// A failing stream task fails only its stream. Any other failure fails the
// whole sync, which closes every open stream with the cause and tears the
// destination down.
//
// # Quick Start
//
//	source read | nebula-sync run --config sync.yaml --catalog catalog.json > state.jsonl
//
// Programmatically:
//
//	writer, _ := registry.CreateDestination(cfg.Destination, log)
//	s, err := pipeline.NewSync(cfg, catalog, writer, os.Stdin, checkpoint.NewStdoutOutput(os.Stdout), log)
//	if err != nil {
//	    return err
//	}
//	err = s.Run(ctx)
//
// # Key Packages
//
//	internal/pipeline      - Task runner, launcher, tasks, exception handling, Sync
//	internal/state         - Per-stream and per-sync bookkeeping
//	internal/checkpoint    - Checkpoint gating and forced flush events
//	internal/spill         - Local spill files
//	internal/ingest        - Protocol reader
//	pkg/destination        - Connector-facing model (Writer, StreamLoader, Batch)
//	pkg/connectors/jsonl   - Reference connector writing JSONL part files
//	pkg/connectors/sqlite  - Reference connector loading SQLite tables
//	pkg/config             - SyncConfig and YAML loading
//	pkg/nebulaerrors       - Structured error handling
//	pkg/logger             - Structured logging
//	pkg/metrics            - Prometheus metrics
//	pkg/observability      - OpenTelemetry tracing
//
// # Configuration
//
// Configuration is a YAML file read into config.SyncConfig. Environment
// variables are supported with ${VAR_NAME} syntax, and the CLI layers
// flags and NEBULA_SYNC_* variables over the file.
package nebula
