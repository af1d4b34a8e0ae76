package testsupport

import (
	"testing"

	"bwtools/internal/config"
	"bwtools/internal/manifest"
)

// MustOpenManifest opens the config's manifest for tests and registers cleanup.
func MustOpenManifest(t testing.TB, cfg *config.Config) *manifest.Store {
	t.Helper()

	store, err := manifest.Open(cfg.ManifestPath(), nil)
	if err != nil {
		t.Fatalf("manifest.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
