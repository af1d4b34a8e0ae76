package finalize

import (
	"fmt"
	"path/filepath"
	"strings"

	"bwtools/internal/replay"
	"bwtools/internal/textutil"
)

// ReplayExt is the extension of finalized replays.
const ReplayExt = ".rep"

// Fallback names used when analysis does not yield an opponent.
const (
	OpponentFallback = "Opponent"
)

// Player is a named participant with a normalized race label.
type Player struct {
	Name string
	Race string
}

// Layout locates the library directory a run writes into.
type Layout struct {
	Root    string
	Profile string
	Matchup string
}

// NewLayout derives the profile directory from alias, falling back to toon,
// and the matchup directory from the requested matchup ("All" when unset).
func NewLayout(libraryRoot, toon, alias string, matchup replay.Matchup) Layout {
	profile := strings.TrimSpace(alias)
	if profile == "" {
		profile = toon
	}
	return Layout{
		Root:    libraryRoot,
		Profile: textutil.SanitizeComponent(profile),
		Matchup: textutil.SanitizeComponent(matchup.Key()),
	}
}

// Dir returns <root>/<profile>/<matchup>.
func (l Layout) Dir() string {
	return filepath.Join(l.Root, l.Profile, l.Matchup)
}

// OrderPlayers puts mainPlayer first when analysis lists them (matched
// case-insensitively), otherwise keeps analysis order. A missing opponent
// becomes Opponent(Unknown).
func OrderPlayers(result replay.AnalysisResult, mainPlayer string) (Player, Player) {
	players := make([]Player, 0, len(result.PlayerNames))
	for i, name := range result.PlayerNames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		race := replay.Unknown
		if i < len(result.PlayerRaces) && strings.TrimSpace(result.PlayerRaces[i]) != "" {
			race = replay.NormalizeRace(result.PlayerRaces[i])
		}
		players = append(players, Player{Name: name, Race: race})
	}

	opponent := Player{Name: OpponentFallback, Race: replay.Unknown}
	target := strings.TrimSpace(mainPlayer)
	if target != "" {
		for i, p := range players {
			if !strings.EqualFold(p.Name, target) {
				continue
			}
			for j, other := range players {
				if j != i {
					return p, other
				}
			}
			return p, opponent
		}
	}
	switch len(players) {
	case 0:
		return Player{Name: textutil.Fallback, Race: replay.Unknown}, opponent
	case 1:
		return players[0], opponent
	default:
		return players[0], players[1]
	}
}

// FileName renders P1(Race1)_vs_P2(Race2).rep with each part sanitized.
func FileName(first, second Player) string {
	return fmt.Sprintf("%s(%s)_vs_%s(%s)%s",
		textutil.SanitizeComponent(first.Name),
		textutil.SanitizeComponent(first.Race),
		textutil.SanitizeComponent(second.Name),
		textutil.SanitizeComponent(second.Race),
		ReplayExt)
}

// suffixed returns name with -n inserted before the extension.
func suffixed(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n, ext)
}
