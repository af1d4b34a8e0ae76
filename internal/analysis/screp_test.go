package analysis_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"bwtools/internal/analysis"
	"bwtools/internal/testsupport"
)

func stagedReplay(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "staged.part")
	testsupport.WriteFile(t, path, 64)
	return path
}

func TestScrepAnalyzeSuccess(t *testing.T) {
	overview := testsupport.Overview(600, testsupport.Player{Name: "Foo", Race: "P"}, testsupport.Player{Name: "Bar", Race: "T"})
	stub := testsupport.WriteScrepStub(t, t.TempDir(), overview, 0)

	result, err := analysis.NewScrep(stub, 5*time.Second, nil).Analyze(context.Background(), stagedReplay(t))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.DurationSeconds != 600 || len(result.PlayerNames) != 2 || result.PlayerRaces[1] != "Terran" {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestScrepNonZeroExitIsCorrupt(t *testing.T) {
	stub := testsupport.WriteScrepStub(t, t.TempDir(), "bad replay", 2)

	_, err := analysis.NewScrep(stub, 0, nil).Analyze(context.Background(), stagedReplay(t))
	var aerr *analysis.Error
	if !errors.As(err, &aerr) || aerr.Kind != analysis.KindCorrupt {
		t.Fatalf("expected corrupt error, got %v", err)
	}
}

func TestScrepUnparsableOutputIsCorrupt(t *testing.T) {
	stub := testsupport.WriteScrepStub(t, t.TempDir(), "garbage", 0)

	_, err := analysis.NewScrep(stub, 0, nil).Analyze(context.Background(), stagedReplay(t))
	var aerr *analysis.Error
	if !errors.As(err, &aerr) || aerr.Kind != analysis.KindCorrupt {
		t.Fatalf("expected corrupt error, got %v", err)
	}
}

func TestScrepMissingToolIsFatal(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	screp := analysis.NewScrep(missing, 0, nil)

	_, err := screp.Analyze(context.Background(), stagedReplay(t))
	var aerr *analysis.Error
	if !errors.As(err, &aerr) || aerr.Kind != analysis.KindToolMissing {
		t.Fatalf("expected tool missing error, got %v", err)
	}
	if err := screp.Available(); err == nil {
		t.Fatal("expected Available to fail")
	}

	t.Setenv("PATH", t.TempDir())
	if _, err := analysis.NewScrep("screp-not-installed", 0, nil).Analyze(context.Background(), stagedReplay(t)); !errors.As(err, &aerr) || aerr.Kind != analysis.KindToolMissing {
		t.Fatalf("expected tool missing error for PATH lookup, got %v", err)
	}
}

func TestScrepTimeoutIsCorrupt(t *testing.T) {
	stub := filepath.Join(t.TempDir(), "screp")
	testsupport.WriteScript(t, stub, "#!/bin/sh\nexec sleep 5\n")

	_, err := analysis.NewScrep(stub, 50*time.Millisecond, nil).Analyze(context.Background(), stagedReplay(t))
	var aerr *analysis.Error
	if !errors.As(err, &aerr) || aerr.Kind != analysis.KindCorrupt {
		t.Fatalf("expected corrupt error on timeout, got %v", err)
	}
}

func TestScrepCancellationIsReturned(t *testing.T) {
	stub := filepath.Join(t.TempDir(), "screp")
	testsupport.WriteScript(t, stub, "#!/bin/sh\nexec sleep 5\n")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := analysis.NewScrep(stub, 0, nil).Analyze(ctx, stagedReplay(t))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected caller deadline, got %v", err)
	}
}
