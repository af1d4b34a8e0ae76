// Package services defines shared utilities consumed by the curation pipeline
// stages and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, candidate links, and stage names for
//     logging.
//   - Structured error markers plus the Wrap helper so failures carry a
//     consistent classification (external tool, validation, transient, ...)
//     regardless of which stage produced them.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability) stays uniform across the pipeline.
package services
