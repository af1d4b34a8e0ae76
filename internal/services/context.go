package services

import "context"

type contextKey string

const (
	runIDKey     contextKey = "run_id"
	candidateKey contextKey = "candidate"
	stageKey     contextKey = "stage"
)

// WithRunID annotates context with the pipeline run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the pipeline run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithCandidate annotates context with the remote replay link being processed.
func WithCandidate(ctx context.Context, link string) context.Context {
	if link == "" {
		return ctx
	}
	return context.WithValue(ctx, candidateKey, link)
}

// CandidateFromContext returns the candidate link if present.
func CandidateFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(candidateKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}
