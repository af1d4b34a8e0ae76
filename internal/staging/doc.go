// Package staging inspects and sweeps the download staging directory.
//
// Downloads land in staging as *.part files and leave it either by being
// finalized into the library or by being discarded. Anything still present
// after a run (a crash, a kill, a failed cross-device removal) is an orphan;
// CleanPartials removes those at the start and end of every run.
package staging
