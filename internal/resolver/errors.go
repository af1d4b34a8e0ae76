package resolver

import "fmt"

// Kind classifies resolve failures.
type Kind int

const (
	// KindUpstream covers transport, status, and decode failures of the remote API.
	KindUpstream Kind = iota + 1
	// KindNoURL means the lookup returned no usable replay URL.
	KindNoURL
)

func (k Kind) String() string {
	switch k {
	case KindUpstream:
		return "upstream"
	case KindNoURL:
		return "no_url"
	default:
		return "unknown"
	}
}

// Error reports a failed profile or match lookup.
type Error struct {
	Kind Kind
	Link string
	Err  error
}

func (e *Error) Error() string {
	subject := "profile"
	if e.Link != "" {
		subject = "candidate " + e.Link
	}
	if e.Err == nil {
		return fmt.Sprintf("resolve %s: %s", subject, e.Kind)
	}
	return fmt.Sprintf("resolve %s: %s: %v", subject, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
