// Package pipeline drives replay candidates from discovery to the library.
//
// An Orchestrator run lists candidates for one profile and matchup, then moves
// each through a fixed state machine on a bounded pool of workers:
//
//	discovered -> resolved -> (skipped | downloading) -> downloaded ->
//	analyzed -> (rejected | accepting) -> finalized
//
// Any failure ends the candidate in an absorbing *_failed state (or cancelled)
// and never affects other candidates. Two conditions end the whole run: the
// analysis tool is missing, or the caller cancels the context. The profile
// lookup failing also ends the run, since there is nothing left to process.
//
// Dedup happens right after resolution, before the binary is fetched. The
// manifest claim taken by the finalizer closes the remaining window where two
// candidates share an identity key within the same run.
//
// Partial downloads are swept from staging at the start and end of every run,
// so a run that fails or is cancelled leaves staging empty.
package pipeline
