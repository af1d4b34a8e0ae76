package analysis

import "fmt"

// Kind classifies analysis failures.
type Kind int

const (
	// KindToolMissing means the analysis tool could not be located or started.
	KindToolMissing Kind = iota + 1
	// KindCorrupt means the tool rejected the replay or produced an unusable report.
	KindCorrupt
)

func (k Kind) String() string {
	switch k {
	case KindToolMissing:
		return "tool_missing"
	case KindCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// Error reports a failed analysis.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("analyze %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
