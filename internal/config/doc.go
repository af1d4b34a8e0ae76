// Package config loads, normalizes, and validates bwtools configuration data.
//
// It supplies repository defaults (including the OS-specific StarCraft replay
// directory), expands user paths (including tilde shortcuts), reads TOML
// files, and honours environment fallbacks such as BWTOOLS_API_BASE_URL. The
// Config type centralizes every knob the curation pipeline and CLI need, and
// derives the library layout (bwtools root, manifest path) in one place.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
