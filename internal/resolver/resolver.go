package resolver

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sort"
	"strings"

	"bwtools/internal/bwapi"
	"bwtools/internal/logging"
	"bwtools/internal/replay"
)

// ProfileReplayCap is the most replays the profile payload ever lists.
const ProfileReplayCap = 20

// humanPlayerType is the replay_player_types value for a human player.
const humanPlayerType = "1"

// Request selects the candidates to list.
type Request struct {
	Toon     string
	Gateway  bwapi.Gateway
	Matchup  replay.Matchup
	MaxCount int
}

// Limit returns the effective candidate cap.
func (r Request) Limit() int {
	if r.MaxCount <= 0 || r.MaxCount > ProfileReplayCap {
		return ProfileReplayCap
	}
	return r.MaxCount
}

// Resolver lists and resolves replay candidates.
type Resolver struct {
	api    bwapi.API
	logger *slog.Logger
}

// New creates a Resolver backed by api.
func New(api bwapi.API, logger *slog.Logger) *Resolver {
	return &Resolver{api: api, logger: logging.NewComponentLogger(logger, "resolver")}
}

// ListCandidates lazily yields 1v1 human candidates from the profile, newest
// first, keeping only those whose race list matches the requested matchup and
// stopping after Request.Limit candidates. A profile lookup failure is yielded
// once as a KindUpstream error and ends the sequence.
func (r *Resolver) ListCandidates(ctx context.Context, req Request) iter.Seq2[replay.Candidate, error] {
	return func(yield func(replay.Candidate, error) bool) {
		profile, err := r.api.Profile(ctx, req.Toon, req.Gateway)
		if err != nil {
			yield(replay.Candidate{}, &Error{Kind: KindUpstream, Err: err})
			return
		}

		entries := append([]bwapi.ProfileReplay(nil), profile.Replays...)
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].CreateTime > entries[j].CreateTime
		})

		limit := req.Limit()
		emitted := 0
		for _, entry := range entries {
			if emitted >= limit {
				return
			}
			if !isOneVsOne(entry.Attributes) {
				continue
			}
			if !req.Matchup.Matches(entry.Attributes.ReplayPlayerRaces) {
				continue
			}
			emitted++
			if !yield(candidateFrom(entry), nil) {
				return
			}
		}
		r.logger.Debug("listed replay candidates",
			logging.String("toon", req.Toon),
			logging.String("matchup", req.Matchup.Key()),
			logging.Int("profile_replays", len(entries)),
			logging.Int("candidates", emitted))
	}
}

// Resolve performs one matchmaker lookup for candidate and picks the freshest
// replay URL. Ties on create time keep the first descriptor listed.
func (r *Resolver) Resolve(ctx context.Context, candidate replay.Candidate) (replay.ResolvedDownload, error) {
	descriptors, err := r.api.MatchReplays(ctx, candidate.Link)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return replay.ResolvedDownload{}, ctxErr
		}
		return replay.ResolvedDownload{}, &Error{Kind: KindUpstream, Link: candidate.Link, Err: err}
	}
	best, ok := Freshest(descriptors)
	if !ok {
		return replay.ResolvedDownload{}, &Error{Kind: KindNoURL, Link: candidate.Link, Err: errors.New("no replay URLs in matchmaker detail")}
	}
	if strings.TrimSpace(best.URL) == "" {
		return replay.ResolvedDownload{}, &Error{Kind: KindNoURL, Link: candidate.Link, Err: errors.New("empty replay url")}
	}

	owned := candidate
	return replay.ResolvedDownload{
		Candidate:   &owned,
		URL:         strings.TrimSpace(best.URL),
		ContentHash: strings.TrimSpace(best.MD5),
		CreateTime:  best.CreateTime,
	}, nil
}

// Freshest returns the descriptor with the greatest create time, keeping the
// earliest one on ties.
func Freshest(descriptors []bwapi.ReplayDescriptor) (bwapi.ReplayDescriptor, bool) {
	if len(descriptors) == 0 {
		return bwapi.ReplayDescriptor{}, false
	}
	best := descriptors[0]
	for _, d := range descriptors[1:] {
		if d.CreateTime > best.CreateTime {
			best = d
		}
	}
	return best, true
}

func isOneVsOne(attrs bwapi.Attributes) bool {
	if len(splitNonEmpty(attrs.ReplayPlayerNames)) != 2 {
		return false
	}
	if len(splitNonEmpty(attrs.ReplayPlayerRaces)) != 2 {
		return false
	}
	humans := 0
	for _, kind := range splitNonEmpty(attrs.ReplayPlayerTypes) {
		if kind == humanPlayerType {
			humans++
		}
	}
	return humans == 2
}

func candidateFrom(entry bwapi.ProfileReplay) replay.Candidate {
	races := splitNonEmpty(entry.Attributes.ReplayPlayerRaces)
	for i, race := range races {
		races[i] = replay.NormalizeRace(race)
	}
	return replay.Candidate{
		Link:        entry.Link,
		CreateTime:  entry.CreateTime,
		PlayerNames: splitNonEmpty(entry.Attributes.ReplayPlayerNames),
		PlayerRaces: races,
		RaceList:    entry.Attributes.ReplayPlayerRaces,
		GameID:      strings.TrimSpace(entry.Attributes.GameID),
		MapTitle:    strings.TrimSpace(entry.Attributes.MapTitle),
	}
}

func splitNonEmpty(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
