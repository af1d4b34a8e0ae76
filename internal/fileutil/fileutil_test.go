package fileutil

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/spf13/afero"
)

func TestCopyVerified(t *testing.T) {
	fsys := afero.NewMemMapFs()
	content := []byte("replay bytes")
	if err := afero.WriteFile(fsys, "/staging/a.part", content, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := fsys.MkdirAll("/lib", 0o755); err != nil {
		t.Fatal(err)
	}

	if err := CopyVerified(fsys, "/staging/a.part", "/lib/a.rep"); err != nil {
		t.Fatalf("CopyVerified: %v", err)
	}
	got, err := afero.ReadFile(fsys, "/lib/a.rep")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
	if ok, _ := afero.Exists(fsys, "/staging/a.part"); !ok {
		t.Fatal("copy must not remove the source")
	}
}

// flippingFs hands out writable files that invert every byte written while
// reporting a full write.
type flippingFs struct{ afero.Fs }

func (f flippingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil || flag&(os.O_WRONLY|os.O_RDWR) == 0 {
		return file, err
	}
	return flippingFile{file}, nil
}

type flippingFile struct{ afero.File }

func (f flippingFile) Write(p []byte) (int, error) {
	flipped := make([]byte, len(p))
	for i, b := range p {
		flipped[i] = ^b
	}
	return f.File.Write(flipped)
}

func TestCopyVerifiedDetectsCorruptedDestination(t *testing.T) {
	base := afero.NewMemMapFs()
	if err := afero.WriteFile(base, "/staging/a.part", []byte("replay bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := base.MkdirAll("/lib", 0o755); err != nil {
		t.Fatal(err)
	}
	fsys := flippingFs{base}

	err := CopyVerified(fsys, "/staging/a.part", "/lib/a.rep")
	if err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("expected hash mismatch, got %v", err)
	}
	if ok, _ := afero.Exists(base, "/lib/a.rep"); ok {
		t.Fatal("corrupted destination must be removed")
	}
}

func TestCopyVerifiedMissingSource(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := CopyVerified(fsys, "/missing", "/dst"); err == nil {
		t.Fatal("expected error for missing source")
	}
	if ok, _ := afero.Exists(fsys, "/dst"); ok {
		t.Fatal("destination must not be created")
	}
}

func TestCopyVerifiedReadOnlyDestination(t *testing.T) {
	base := afero.NewMemMapFs()
	if err := afero.WriteFile(base, "/src", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	fsys := afero.NewReadOnlyFs(base)
	if err := CopyVerified(fsys, "/src", "/dst"); err == nil {
		t.Fatal("expected write failure on read-only filesystem")
	}
}

func TestMD5File(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/f", []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := MD5File(fsys, "/f")
	if err != nil {
		t.Fatal(err)
	}
	if got != "900150983cd24fb0d6963f7d28e17f72" {
		t.Fatalf("unexpected digest %q", got)
	}
}

func TestIsCrossDevice(t *testing.T) {
	linkErr := &os.LinkError{Op: "rename", Old: "a", New: "b", Err: syscall.EXDEV}
	if !IsCrossDevice(linkErr) {
		t.Fatal("expected EXDEV to be detected")
	}
	if IsCrossDevice(fmt.Errorf("other: %w", os.ErrNotExist)) {
		t.Fatal("unexpected cross-device classification")
	}
}

func TestSyncDir(t *testing.T) {
	if err := SyncDir(afero.NewOsFs(), t.TempDir()); err != nil {
		t.Fatalf("SyncDir on os fs: %v", err)
	}
	mem := afero.NewMemMapFs()
	if err := mem.MkdirAll("/lib", 0o755); err != nil {
		t.Fatal(err)
	}
	if err := SyncDir(mem, "/lib"); err != nil {
		t.Fatalf("SyncDir on mem fs: %v", err)
	}
	if err := SyncDir(mem, "/missing"); err == nil {
		t.Fatal("expected error for missing dir")
	}
}
