package download

import "fmt"

// Kind classifies download failures.
type Kind int

const (
	// KindTransient means retries were exhausted on a recoverable failure.
	KindTransient Kind = iota + 1
	// KindIntegrity means the fetched bytes did not match the expected digest.
	KindIntegrity
	// KindFatal covers permanent failures such as 4xx responses or local I/O errors.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindIntegrity:
		return "integrity"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error reports a failed fetch.
type Error struct {
	Kind     Kind
	URL      string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("download %s (%s after %d attempt(s)): %v", e.URL, e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
