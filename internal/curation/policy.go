package curation

import (
	"fmt"

	"bwtools/internal/replay"
)

// DefaultMinDurationSeconds is the shortest match length that is rejected.
const DefaultMinDurationSeconds = 120

// Policy accepts or rejects an analysis result.
type Policy interface {
	Accept(result replay.AnalysisResult) bool
	Reason() string
}

// MinDuration rejects matches lasting Seconds or less.
type MinDuration struct {
	Seconds int
}

// Accept reports whether result is strictly longer than the threshold.
func (m MinDuration) Accept(result replay.AnalysisResult) bool {
	return result.DurationSeconds > m.Seconds
}

func (m MinDuration) Reason() string {
	return fmt.Sprintf("duration <= %ds", m.Seconds)
}

// MinPlayers rejects matches with fewer than Count distinct players.
type MinPlayers struct {
	Count int
}

func (m MinPlayers) Accept(result replay.AnalysisResult) bool {
	return len(result.PlayerNames) >= m.Count
}

func (m MinPlayers) Reason() string {
	return fmt.Sprintf("fewer than %d players", m.Count)
}

type all []Policy

// All accepts only when every policy accepts.
func All(policies ...Policy) Policy {
	return all(policies)
}

func (a all) Accept(result replay.AnalysisResult) bool {
	_, ok := a.firstRejection(result)
	return ok
}

func (a all) Reason() string {
	return "composite policy"
}

func (a all) firstRejection(result replay.AnalysisResult) (Policy, bool) {
	for _, p := range a {
		if p != nil && !p.Accept(result) {
			return p, false
		}
	}
	return nil, true
}

// Evaluate applies policy and returns the rejection reason, if any.
func Evaluate(policy Policy, result replay.AnalysisResult) (bool, string) {
	if policy == nil {
		return true, ""
	}
	if composite, ok := policy.(all); ok {
		if rejected, accepted := composite.firstRejection(result); !accepted {
			return false, rejected.Reason()
		}
		return true, ""
	}
	if policy.Accept(result) {
		return true, ""
	}
	return false, policy.Reason()
}

// Default returns the standard curation policy for min duration seconds.
func Default(minDurationSeconds int) Policy {
	return All(MinDuration{Seconds: minDurationSeconds}, MinPlayers{Count: 1})
}
