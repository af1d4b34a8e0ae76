// Package bwapi is a small HTTP client for the local StarCraft: Remastered
// profile web API. It exposes the two lookups the curation pipeline consumes:
// the per-toon profile (which lists recent replays) and the per-match
// matchmaker detail (which lists downloadable replay binaries).
//
// Calls pass through an optional backoff.Gate so every caller in a run shares
// the same pacing and rate-limit cool-down.
package bwapi
