package main

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"bwtools/internal/config"
	"bwtools/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	server     *httptest.Server
}

// fakeReplay is one ladder game served by the test API.
type fakeReplay struct {
	link    string
	gameID  string
	names   string
	races   string
	created int64
	content []byte
}

func setupCLITestEnv(t *testing.T, overview string, replays ...fakeReplay) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("BWTOOLS_API_BASE_URL", "")

	server := newReplayServer(t, replays)
	cfg := testsupport.NewConfig(t,
		testsupport.WithAPIBaseURL(server.URL),
		testsupport.WithScrepOverview(overview, 0),
	)
	cfg.History.Enabled = true

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, server: server}
}

func newReplayServer(t *testing.T, replays []fakeReplay) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/web-api/v2/aurora-profile-by-toon/", func(w http.ResponseWriter, r *http.Request) {
		entries := make([]string, 0, len(replays))
		for _, rep := range replays {
			entries = append(entries, fmt.Sprintf(
				`{"attributes":{"game_id":%q,"map_title":"Polypoid","replay_player_names":%q,"replay_player_races":%q,"replay_player_types":"1,1"},"create_time":%d,"link":%q}`,
				rep.gameID, rep.names, rep.races, rep.created, rep.link))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"replays":[%s]}`, strings.Join(entries, ","))
	})
	mux.HandleFunc("/web-api/v1/matchmaker-gameinfo-playerinfo/{link}", func(w http.ResponseWriter, r *http.Request) {
		for _, rep := range replays {
			if rep.link != r.PathValue("link") {
				continue
			}
			sum := md5.Sum(rep.content)
			fmt.Fprintf(w, `{"replays":[{"url":"%s/files/%s.rep","md5":%q,"create_time":%d}]}`,
				server.URL, rep.link, hex.EncodeToString(sum[:]), rep.created)
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("/files/{name}", func(w http.ResponseWriter, r *http.Request) {
		for _, rep := range replays {
			if rep.link+".rep" == r.PathValue("name") {
				_, _ = w.Write(rep.content)
				return
			}
		}
		http.NotFound(w, r)
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
