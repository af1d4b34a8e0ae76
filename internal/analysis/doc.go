// Package analysis runs the external replay analysis tool against a staged
// replay and parses its overview report into player names, races, and match
// duration.
//
// The Analyzer interface is the only thing the pipeline depends on, so the
// subprocess-backed Screp implementation can be swapped for an in-process
// decoder. A missing tool is fatal for the whole run; a non-zero exit or an
// unparsable report only affects the replay being analyzed.
package analysis
