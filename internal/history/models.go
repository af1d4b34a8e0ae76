package history

import "time"

// Run is one curate invocation.
type Run struct {
	ID         string    `json:"run_id"`
	Toon       string    `json:"toon"`
	Gateway    int       `json:"gateway"`
	Matchup    string    `json:"matchup"`
	Alias      string    `json:"alias,omitempty"`
	MaxCount   int       `json:"max_count"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Downloaded int       `json:"downloaded"`
	Skipped    int       `json:"skipped"`
	Rejected   int       `json:"rejected"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

// Finished reports whether FinishRun has been recorded for the run.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Total returns the number of candidates that reached a terminal state.
func (r Run) Total() int {
	return r.Downloaded + r.Skipped + r.Rejected + r.Failed
}

// Outcome is the terminal state of one candidate within a run.
type Outcome struct {
	RunID       string    `json:"run_id"`
	Link        string    `json:"link"`
	IdentityKey string    `json:"identity_key,omitempty"`
	State       string    `json:"state"`
	Path        string    `json:"path,omitempty"`
	Error       string    `json:"error,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}
