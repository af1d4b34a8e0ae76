// Package replay defines the data model shared by the curation pipeline stages:
// remote candidates, resolved downloads, analysis results, finalized replays,
// and the race and matchup vocabulary used to filter and label them.
//
// Values in this package are plain data. Candidates and resolved downloads live
// for a single run; only FinalizedReplay paths and their identity keys outlive
// it, through the manifest.
package replay
