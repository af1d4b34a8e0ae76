package pipeline

import (
	"context"

	"bwtools/internal/replay"
)

// Event reports one state transition.
type Event struct {
	RunID     string
	Candidate replay.Candidate
	State     State
	Reason    string
	Err       error
}

// Observer receives state transitions. Calls come from worker goroutines and
// must not block for long.
type Observer interface {
	Observe(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event Event)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, event Event) {
	f(ctx, event)
}
