// Package backoff provides the pacing shared by every remote call a curation
// run makes: a Gate that spaces calls and imposes a global cool-down when the
// remote side signals rate limiting or keeps failing, and a Policy computing
// capped exponential retry delays.
package backoff
