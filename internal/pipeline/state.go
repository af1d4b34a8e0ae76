package pipeline

// State is a candidate's position in the pipeline.
type State string

const (
	StateDiscovered  State = "discovered"
	StateResolved    State = "resolved"
	StateDownloading State = "downloading"
	StateDownloaded  State = "downloaded"
	StateAnalyzed    State = "analyzed"
	StateAccepting   State = "accepting"

	StateSkipped   State = "skipped"
	StateRejected  State = "rejected"
	StateFinalized State = "finalized"
	StateCancelled State = "cancelled"

	StateResolveFailed  State = "resolve_failed"
	StateDownloadFailed State = "download_failed"
	StateAnalysisFailed State = "analysis_failed"
	StateFinalizeFailed State = "finalize_failed"
)

var terminalStates = map[State]struct{}{
	StateSkipped:        {},
	StateRejected:       {},
	StateFinalized:      {},
	StateCancelled:      {},
	StateResolveFailed:  {},
	StateDownloadFailed: {},
	StateAnalysisFailed: {},
	StateFinalizeFailed: {},
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	_, ok := terminalStates[s]
	return ok
}

// Failed reports whether s is one of the *_failed states.
func (s State) Failed() bool {
	switch s {
	case StateResolveFailed, StateDownloadFailed, StateAnalysisFailed, StateFinalizeFailed:
		return true
	default:
		return false
	}
}

// Summary counts candidates per terminal state.
type Summary struct {
	Downloaded int
	Skipped    int
	Rejected   int
	Failed     int
	Cancelled  int
}

// Total returns the number of candidates counted.
func (s Summary) Total() int {
	return s.Downloaded + s.Skipped + s.Rejected + s.Failed + s.Cancelled
}

func (s *Summary) add(state State) {
	switch {
	case state == StateFinalized:
		s.Downloaded++
	case state == StateSkipped:
		s.Skipped++
	case state == StateRejected:
		s.Rejected++
	case state == StateCancelled:
		s.Cancelled++
	case state.Failed():
		s.Failed++
	}
}
