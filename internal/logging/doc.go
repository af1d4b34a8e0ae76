// Package logging assembles structured slog loggers and formatting helpers used
// across bwtools.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so pipeline stages automatically tag log
// lines with the run ID, candidate link, and stage. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
package logging
