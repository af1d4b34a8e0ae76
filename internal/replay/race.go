package replay

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Race labels as produced by NormalizeRace.
const (
	Protoss = "Protoss"
	Terran  = "Terran"
	Zerg    = "Zerg"
	Random  = "Random"
	Unknown = "Unknown"
)

// Casers carry state and must not be shared between goroutines.
func lowerRace(value string) string { return cases.Lower(language.Und).String(value) }

func titleRace(value string) string { return cases.Title(language.Und).String(value) }

// NormalizeRace canonicalizes a known race name to its title-cased label.
// Unknown values are returned trimmed but otherwise untouched.
func NormalizeRace(raw string) string {
	trimmed := strings.TrimSpace(raw)
	switch key := lowerRace(trimmed); key {
	case "protoss", "terran", "zerg", "random":
		return titleRace(key)
	default:
		return trimmed
	}
}

// RaceFromInitial maps a single race letter (P, T, Z, R) to its label.
func RaceFromInitial(letter string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(letter)) {
	case "P":
		return Protoss, true
	case "T":
		return Terran, true
	case "Z":
		return Zerg, true
	case "R":
		return Random, true
	default:
		return "", false
	}
}

// RaceInitial returns the one-letter abbreviation for a race name, or "?".
func RaceInitial(raw string) string {
	switch NormalizeRace(raw) {
	case Protoss:
		return "P"
	case Terran:
		return "T"
	case Zerg:
		return "Z"
	case Random:
		return "R"
	default:
		return "?"
	}
}

// ParseRace accepts a full race name or its initial.
func ParseRace(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) == 1 {
		return RaceFromInitial(trimmed)
	}
	label := NormalizeRace(trimmed)
	switch label {
	case Protoss, Terran, Zerg, Random:
		return label, true
	default:
		return "", false
	}
}
