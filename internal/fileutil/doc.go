// Package fileutil holds filesystem helpers shared by the staging and finalize
// stages. Functions take an afero.Fs so tests can run against an in-memory
// filesystem.
package fileutil
