// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for human readability
//
// Output defaults to stderr so that a command printing evaluation results
// on stdout stays pipeable.
//
// Library packages take a plain *zap.Logger in their configuration and
// accept nil; OrNop turns nil into a no-op logger. ForContext and Source
// give every package the same field names for a context and for the
// confined source it rejected.
//
// Example Usage:
//
//	logger, err := logging.New(logging.DefaultConfig())
//	log := logging.ForContext(logger.Logger, id, "root")
//	log.Debug("source rejected", logging.Source(src))
package logging
