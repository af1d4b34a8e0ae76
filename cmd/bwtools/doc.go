// Package main hosts the bwtools CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration, builds the slog logger, and
// hands off to the internal packages: curate runs the acquisition pipeline,
// manifest and history inspect what earlier runs produced, and preflight
// reports whether the environment is ready. A .env file in the working
// directory is loaded before flags are parsed, so BWTOOLS_API_BASE_URL can
// live there.
package main
