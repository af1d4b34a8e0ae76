// Package resolver turns a player's profile into matchup-filtered replay
// candidates and resolves each candidate to the concrete binary URL and content
// hash the download stage fetches.
//
// Candidate listing performs one profile lookup; resolution performs exactly one
// matchmaker lookup per candidate. Neither retries: metadata lookups are cheap
// and idempotent, so retry policy belongs to the caller.
package resolver
