package resolver_test

import (
	"context"
	"errors"
	"testing"

	"bwtools/internal/bwapi"
	"bwtools/internal/replay"
	"bwtools/internal/resolver"
)

type fakeAPI struct {
	profile      *bwapi.ScrProfile
	profileErr   error
	matches      map[string][]bwapi.ReplayDescriptor
	matchErr     error
	matchLookups []string
}

func (f *fakeAPI) Profile(context.Context, string, bwapi.Gateway) (*bwapi.ScrProfile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profile, nil
}

func (f *fakeAPI) MatchReplays(_ context.Context, link string) ([]bwapi.ReplayDescriptor, error) {
	f.matchLookups = append(f.matchLookups, link)
	if f.matchErr != nil {
		return nil, f.matchErr
	}
	return f.matches[link], nil
}

func entry(link string, created int64, names, races, types string) bwapi.ProfileReplay {
	return bwapi.ProfileReplay{
		Link:       link,
		CreateTime: created,
		Attributes: bwapi.Attributes{
			GameID:            "game-" + link,
			ReplayPlayerNames: names,
			ReplayPlayerRaces: races,
			ReplayPlayerTypes: types,
		},
	}
}

func collect(t *testing.T, r *resolver.Resolver, req resolver.Request) []replay.Candidate {
	t.Helper()
	var out []replay.Candidate
	for candidate, err := range r.ListCandidates(context.Background(), req) {
		if err != nil {
			t.Fatalf("ListCandidates yielded error: %v", err)
		}
		out = append(out, candidate)
	}
	return out
}

func mustMatchup(t *testing.T, value string) replay.Matchup {
	t.Helper()
	m, err := replay.ParseMatchup(value)
	if err != nil {
		t.Fatalf("ParseMatchup: %v", err)
	}
	return m
}

func TestListCandidatesFiltersAndOrders(t *testing.T) {
	api := &fakeAPI{profile: &bwapi.ScrProfile{Replays: []bwapi.ProfileReplay{
		entry("old-pvt", 100, "Foo,Bar", "protoss,terran", "1,1"),
		entry("new-tvp", 300, "Foo,Baz", "terran,protoss", "1,1"),
		entry("pvz", 250, "Foo,Qux", "protoss,zerg", "1,1"),
		entry("computer", 260, "Foo,AI", "protoss,terran", "1,2"),
		entry("team", 270, "Foo,A,B,C", "protoss,terran,zerg,zerg", "1,1,1,1"),
		entry("capitalized", 280, "Foo,Bar", "Protoss,Terran", "1,1"),
	}}}
	r := resolver.New(api, nil)

	got := collect(t, r, resolver.Request{Toon: "Foo", Gateway: bwapi.USWest, Matchup: mustMatchup(t, "PvT"), MaxCount: 10})
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %#v", got)
	}
	if got[0].Link != "new-tvp" || got[1].Link != "old-pvt" {
		t.Fatalf("expected newest first, got %s then %s", got[0].Link, got[1].Link)
	}
	if got[0].PlayerRaces[0] != replay.Terran || got[0].RaceList != "terran,protoss" || got[0].GameID != "game-new-tvp" {
		t.Fatalf("unexpected candidate: %#v", got[0])
	}
}

func TestListCandidatesWithoutMatchupKeepsAllOneVsOne(t *testing.T) {
	api := &fakeAPI{profile: &bwapi.ScrProfile{Replays: []bwapi.ProfileReplay{
		entry("a", 1, "Foo,Bar", "protoss,terran", "1,1"),
		entry("b", 2, "Foo,Baz", "zerg,zerg", "1,1"),
		entry("c", 3, "Foo,AI", "zerg,zerg", "1,2"),
	}}}
	got := collect(t, resolver.New(api, nil), resolver.Request{Toon: "Foo"})
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
}

func TestListCandidatesCapsCount(t *testing.T) {
	replays := make([]bwapi.ProfileReplay, 0, 30)
	for i := range 30 {
		replays = append(replays, entry(string(rune('A'+i)), int64(i), "Foo,Bar", "protoss,terran", "1,1"))
	}
	api := &fakeAPI{profile: &bwapi.ScrProfile{Replays: replays}}
	r := resolver.New(api, nil)

	if got := collect(t, r, resolver.Request{Toon: "Foo", MaxCount: 3}); len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got := collect(t, r, resolver.Request{Toon: "Foo", MaxCount: 50}); len(got) != resolver.ProfileReplayCap {
		t.Fatalf("expected cap of %d, got %d", resolver.ProfileReplayCap, len(got))
	}
}

func TestListCandidatesStopsEarly(t *testing.T) {
	api := &fakeAPI{profile: &bwapi.ScrProfile{Replays: []bwapi.ProfileReplay{
		entry("a", 2, "Foo,Bar", "protoss,terran", "1,1"),
		entry("b", 1, "Foo,Bar", "protoss,terran", "1,1"),
	}}}
	seen := 0
	for range resolver.New(api, nil).ListCandidates(context.Background(), resolver.Request{Toon: "Foo"}) {
		seen++
		break
	}
	if seen != 1 {
		t.Fatalf("expected iteration to stop after break, saw %d", seen)
	}
}

func TestListCandidatesProfileFailure(t *testing.T) {
	api := &fakeAPI{profileErr: errors.New("boom")}
	var errs []error
	for _, err := range resolver.New(api, nil).ListCandidates(context.Background(), resolver.Request{Toon: "Foo"}) {
		errs = append(errs, err)
	}
	var rerr *resolver.Error
	if len(errs) != 1 || !errors.As(errs[0], &rerr) || rerr.Kind != resolver.KindUpstream {
		t.Fatalf("expected single upstream error, got %v", errs)
	}
}

func TestResolvePicksFreshestWithStableTies(t *testing.T) {
	api := &fakeAPI{matches: map[string][]bwapi.ReplayDescriptor{
		"link": {
			{URL: "http://cdn/old.rep", MD5: "old", CreateTime: 5},
			{URL: "http://cdn/first.rep", MD5: "first", CreateTime: 9},
			{URL: "http://cdn/second.rep", MD5: "second", CreateTime: 9},
			{URL: "http://cdn/older.rep", MD5: "older", CreateTime: 1},
		},
	}}
	r := resolver.New(api, nil)
	resolved, err := r.Resolve(context.Background(), replay.Candidate{Link: "link", GameID: "g"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.URL != "http://cdn/first.rep" || resolved.ContentHash != "first" || resolved.CreateTime != 9 {
		t.Fatalf("unexpected resolution: %#v", resolved)
	}
	if resolved.Candidate == nil || resolved.Candidate.Link != "link" {
		t.Fatal("expected candidate back-reference")
	}
	if len(api.matchLookups) != 1 {
		t.Fatalf("expected exactly one lookup, got %d", len(api.matchLookups))
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		api  *fakeAPI
		want resolver.Kind
	}{
		{name: "no urls", api: &fakeAPI{matches: map[string][]bwapi.ReplayDescriptor{}}, want: resolver.KindNoURL},
		{name: "empty url", api: &fakeAPI{matches: map[string][]bwapi.ReplayDescriptor{"link": {{URL: " ", CreateTime: 1}}}}, want: resolver.KindNoURL},
		{name: "upstream", api: &fakeAPI{matchErr: errors.New("status 401")}, want: resolver.KindUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolver.New(tt.api, nil).Resolve(context.Background(), replay.Candidate{Link: "link"})
			var rerr *resolver.Error
			if !errors.As(err, &rerr) || rerr.Kind != tt.want {
				t.Fatalf("expected %v error, got %v", tt.want, err)
			}
		})
	}
}
