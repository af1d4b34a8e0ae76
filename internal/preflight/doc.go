// Package preflight provides readiness checks for the filesystem paths,
// binaries, and remote API that bwtools depends on.
//
// These checks run in two contexts:
//   - The CLI "bwtools preflight" command prints every result.
//   - "bwtools curate" runs them before opening the manifest and refuses to
//     start when a check fails, rather than failing every candidate.
package preflight
