package manifest

import "fmt"

// Kind classifies manifest failures.
type Kind int

const (
	// KindIO covers unreadable, corrupt, or unwritable manifest files.
	KindIO Kind = iota + 1
	// KindLocked means another process holds the manifest lock.
	KindLocked
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// Error reports a manifest failure.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("manifest %s %s: %s", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("manifest %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
