package analysis

import (
	"errors"
	"strconv"
	"strings"

	"bwtools/internal/replay"
)

// playerTableHeader opens the player table in an overview report.
const playerTableHeader = "Team  R  APM"

// ParseOverview parses a screp overview report. The report must carry a
// Length line and at least one player row.
func ParseOverview(text string) (replay.AnalysisResult, error) {
	duration, ok := ParseDuration(text)
	if !ok {
		return replay.AnalysisResult{}, errors.New("overview has no parsable length")
	}
	names, races := parsePlayers(text)
	if len(names) == 0 {
		return replay.AnalysisResult{}, errors.New("overview lists no players")
	}
	return replay.AnalysisResult{
		PlayerNames:     names,
		PlayerRaces:     races,
		DurationSeconds: duration,
	}, nil
}

// ParseDuration reads the first "Length" line as mm:ss or h:mm:ss.
func ParseDuration(text string) (int, bool) {
	for line := range strings.Lines(text) {
		if !strings.Contains(strings.ToLower(line), "length") {
			continue
		}
		_, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		parts := strings.Split(strings.TrimSpace(value), ":")
		var hours, minutes, seconds int
		var err error
		switch len(parts) {
		case 2:
			minutes, err = strconv.Atoi(strings.TrimSpace(parts[0]))
			if err == nil {
				seconds, err = leadingInt(parts[1])
			}
		case 3:
			hours, err = strconv.Atoi(strings.TrimSpace(parts[0]))
			if err == nil {
				minutes, err = strconv.Atoi(strings.TrimSpace(parts[1]))
			}
			if err == nil {
				seconds, err = leadingInt(parts[2])
			}
		default:
			continue
		}
		if err != nil || hours < 0 || minutes < 0 || seconds < 0 {
			continue
		}
		return hours*3600 + minutes*60 + seconds, true
	}
	return 0, false
}

// parsePlayers reads rows after the table header: team, race letter, APM,
// EAPM, slot, then the name, which may contain spaces. Names repeating
// case-insensitively (observer echoes) are dropped.
func parsePlayers(text string) ([]string, []string) {
	var names, races []string
	seen := make(map[string]struct{})
	inTable := false
	for line := range strings.Lines(text) {
		line = strings.TrimRight(line, "\r\n \t")
		if strings.HasPrefix(line, playerTableHeader) {
			inTable = true
			continue
		}
		if !inTable || strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		name := strings.Join(fields[5:], " ")
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		race, ok := replay.RaceFromInitial(fields[1])
		if !ok {
			race = replay.Unknown
		}
		names = append(names, name)
		races = append(races, race)
	}
	return names, races
}

func leadingInt(value string) (int, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0, errors.New("empty value")
	}
	return strconv.Atoi(fields[0])
}
