// Package curation decides which analyzed replays are worth keeping. Policies
// are pure predicates over an analysis result so new acceptance rules can be
// composed without touching the stages around them.
package curation
