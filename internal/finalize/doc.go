// Package finalize places accepted replays at their permanent library path and
// commits their manifest entry.
//
// Destination paths follow <library>/<profile>/<matchup>/<P1>(<Race1>)_vs_<P2>(<Race2>).rep.
// Name collisions are resolved by probing the filesystem for -1, -2, ...
// suffixes under a placement lock, so two accepted replays never overwrite
// each other. The move is a rename when staging and library share a
// filesystem; otherwise the replay is copied under a temporary name, verified,
// synced, and renamed into place before the staged copy is removed.
//
// Identity keys are claimed through the manifest before anything moves, so two
// candidates that resolve to the same binary produce exactly one library file.
package finalize
