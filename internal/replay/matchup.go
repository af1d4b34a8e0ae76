package replay

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// AllMatchups labels the library directory used when no matchup filter is set.
const AllMatchups = "All"

var matchupSeparator = regexp.MustCompile(`(?i)\s*(?:vs\.?|v|,|/)\s*`)

// Matchup is an unordered race pair. The zero value matches every 1v1 replay.
type Matchup struct {
	first  string
	second string
}

// ParseMatchup accepts "PvT", "p,t", "P/T", "Protoss,Terran", or
// "protoss vs terran". Blank input yields the zero (unfiltered) Matchup.
func ParseMatchup(input string) (Matchup, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || strings.EqualFold(trimmed, AllMatchups) {
		return Matchup{}, nil
	}
	parts := matchupSeparator.Split(trimmed, -1)
	if len(parts) != 2 {
		return Matchup{}, fmt.Errorf("matchup %q: expected two races such as PvT", input)
	}
	first, ok := ParseRace(parts[0])
	if !ok {
		return Matchup{}, fmt.Errorf("matchup %q: unknown race %q", input, parts[0])
	}
	second, ok := ParseRace(parts[1])
	if !ok {
		return Matchup{}, fmt.Errorf("matchup %q: unknown race %q", input, parts[1])
	}
	return Matchup{first: first, second: second}, nil
}

// NewMatchup builds a matchup from two race labels or initials.
func NewMatchup(a, b string) (Matchup, error) {
	return ParseMatchup(a + "," + b)
}

// IsZero reports whether the matchup applies no filter.
func (m Matchup) IsZero() bool {
	return m.first == "" && m.second == ""
}

// Orderings returns both race-list strings the upstream profile payload can
// carry for this matchup, in its lowercase comma-joined form. Mirror matchups
// return the same string twice.
func (m Matchup) Orderings() [2]string {
	a := lowerRace(m.first)
	b := lowerRace(m.second)
	return [2]string{a + "," + b, b + "," + a}
}

// Matches reports whether raceList equals either ordering exactly. The zero
// Matchup matches everything.
func (m Matchup) Matches(raceList string) bool {
	if m.IsZero() {
		return true
	}
	orderings := m.Orderings()
	return raceList == orderings[0] || raceList == orderings[1]
}

// Key returns the order-independent label, e.g. "PvT" for both PvT and TvP.
func (m Matchup) Key() string {
	if m.IsZero() {
		return AllMatchups
	}
	initials := []string{RaceInitial(m.first), RaceInitial(m.second)}
	sort.Strings(initials)
	return initials[0] + "v" + initials[1]
}

// String returns the matchup as it was parsed, e.g. "Terran,Protoss".
func (m Matchup) String() string {
	if m.IsZero() {
		return AllMatchups
	}
	return m.first + "," + m.second
}

// KeyFor returns the order-independent label for two race names.
func KeyFor(a, b string) string {
	first, okA := ParseRace(a)
	second, okB := ParseRace(b)
	if !okA || !okB {
		initials := []string{RaceInitial(a), RaceInitial(b)}
		sort.Strings(initials)
		return initials[0] + "v" + initials[1]
	}
	return Matchup{first: first, second: second}.Key()
}
