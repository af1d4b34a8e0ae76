package replay

import (
	"strings"
	"time"
)

// Candidate is a replay entry discovered from a profile query.
type Candidate struct {
	Link        string
	CreateTime  int64
	PlayerNames []string
	PlayerRaces []string
	// RaceList is the comma-delimited race string exactly as the profile
	// payload supplied it; matchup filtering compares against it verbatim.
	RaceList string
	GameID   string
	MapTitle string
}

// CreatedAt returns CreateTime as a UTC timestamp.
func (c Candidate) CreatedAt() time.Time {
	if c.CreateTime <= 0 {
		return time.Time{}
	}
	return time.Unix(c.CreateTime, 0).UTC()
}

// ResolvedDownload pairs a candidate with the binary URL chosen for it.
type ResolvedDownload struct {
	Candidate   *Candidate
	URL         string
	ContentHash string
	CreateTime  int64
}

// IdentityKey returns the dedup key: the content hash when present, otherwise
// the game id, otherwise the candidate link.
func (r ResolvedDownload) IdentityKey() string {
	if hash := strings.ToLower(strings.TrimSpace(r.ContentHash)); hash != "" {
		return hash
	}
	if r.Candidate == nil {
		return ""
	}
	if id := strings.TrimSpace(r.Candidate.GameID); id != "" {
		return id
	}
	return strings.TrimSpace(r.Candidate.Link)
}

// AnalysisResult holds the match facts parsed from the analysis tool report.
// PlayerNames and PlayerRaces are parallel and in report order.
type AnalysisResult struct {
	PlayerNames     []string
	PlayerRaces     []string
	DurationSeconds int
}

// Duration returns DurationSeconds as a time.Duration.
func (a AnalysisResult) Duration() time.Duration {
	return time.Duration(a.DurationSeconds) * time.Second
}

// FinalizedReplay describes a replay placed at its permanent path.
type FinalizedReplay struct {
	Matchup         string
	DestinationPath string
	IdentityKey     string
	Source          Candidate
}
