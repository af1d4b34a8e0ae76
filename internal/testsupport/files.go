package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = 0x42
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteScript writes an executable script at path.
func WriteScript(t testing.TB, path, script string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", path, err)
	}
}

// WriteScrepStub writes a fake screp into dir that prints overview and exits
// with exitCode. It returns the stub path.
func WriteScrepStub(t testing.TB, dir, overview string, exitCode int) string {
	t.Helper()

	var script strings.Builder
	script.WriteString("#!/bin/sh\n")
	script.WriteString("[ \"$1\" = \"-overview\" ] || exit 64\n")
	script.WriteString("[ -f \"$2\" ] || { echo \"no such file: $2\" >&2; exit 66; }\n")
	script.WriteString("cat <<'BWTOOLS_OVERVIEW'\n")
	script.WriteString(overview)
	if !strings.HasSuffix(overview, "\n") {
		script.WriteString("\n")
	}
	script.WriteString("BWTOOLS_OVERVIEW\n")
	fmt.Fprintf(&script, "exit %d\n", exitCode)

	path := filepath.Join(dir, "screp")
	WriteScript(t, path, script.String())
	return path
}

// Player is one row of a generated overview report.
type Player struct {
	Name string
	Race string // P, T, Z, or R
}

// Overview renders a screp overview report for the given players and length.
func Overview(durationSeconds int, players ...Player) string {
	var b strings.Builder
	b.WriteString("Engine  : Brood War 1.16\n")
	b.WriteString("Date    : 2024-03-01 20:15:00 +0000 UTC\n")
	fmt.Fprintf(&b, "Length  : %d:%02d\n", durationSeconds/60, durationSeconds%60)
	b.WriteString("Title   : test game\n")
	b.WriteString("Map     : Polypoid 1.65\n")
	b.WriteString("Type    : Melee\n")
	b.WriteString("Winner  : Team 1\n")
	b.WriteString("Team  R  APM EAPM   @  Name\n")
	for i, p := range players {
		fmt.Fprintf(&b, "   %d  %s  %3d  %3d  %2d  %s\n", i+1, p.Race, 200+i, 150+i, i, p.Name)
	}
	return b.String()
}
