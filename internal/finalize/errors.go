package finalize

import (
	"errors"
	"fmt"
)

// ErrDuplicate means another candidate already finalized, or is finalizing,
// the same identity key. The staged file has been discarded.
var ErrDuplicate = errors.New("identity already finalized")

// Kind classifies finalize failures.
type Kind int

const (
	// KindCollisionExhausted means no free -N suffix was found.
	KindCollisionExhausted Kind = iota + 1
	// KindIO covers directory creation, move, and copy failures.
	KindIO
	// KindRecord means the replay was placed but the manifest commit failed.
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindCollisionExhausted:
		return "collision_exhausted"
	case KindIO:
		return "io"
	case KindRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Error reports a failed finalize.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("finalize %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
