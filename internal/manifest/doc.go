// Package manifest is the durable dedup record of replays that have already
// been finalized. It is the single authority for "already processed": the
// pipeline consults it before any binary is fetched and the finalizer commits
// to it after a replay lands in the library.
//
// The store is a JSON file mapping identity key to {path, saved_at}. It is read
// once at Open and rewritten with a temp file plus rename on every successful
// Record, so the rename is the only commit point. An exclusive lock file keeps
// a second bwtools process from writing the same manifest concurrently.
package manifest
