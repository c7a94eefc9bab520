// Package logging provides a minimal logging interface and adapters for channelmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that channels, branches, workers and the runtime use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NewLogger for level/format configured handlers
//   - With for attaching component or process attributes
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "json"})
//	chLogger := logging.With(logger, "channel_id", id)
package logging
