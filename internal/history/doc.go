// Package history keeps a SQLite ledger of curate runs and the terminal state
// of every candidate they touched.
//
// The ledger is informational: dedup authority stays with the manifest, and a
// missing or disabled ledger never blocks a run. Schema changes are added as
// new files under migrations/ and applied in lexical order at Open, tracked in
// the schema_migrations table.
package history
