// Package download fetches resolved replay binaries into the staging
// directory. Each fetch streams to its own temporary .part file named after the
// candidate's identity key, retries transient failures with capped exponential
// backoff through the shared gate, verifies the MD5 digest the matchmaker
// supplied, and removes the partial file on every terminal failure including
// cancellation.
package download
