package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/codeGROOVE-dev/fediscan/pkg/extract"
	"github.com/codeGROOVE-dev/fediscan/pkg/fedid"
	"github.com/codeGROOVE-dev/fediscan/pkg/instance"
	"github.com/codeGROOVE-dev/fediscan/pkg/profile"
	"github.com/codeGROOVE-dev/fediscan/pkg/results"
)

type fakeLookup map[string]string

func (f fakeLookup) Exists(_ context.Context, id *fedid.Identity) fedid.Status {
	if _, ok := f[id.String()]; ok {
		return fedid.StatusExists
	}
	return fedid.StatusNotFound
}

func (f fakeLookup) ProfilePage(_ context.Context, id *fedid.Identity) (string, bool) {
	u, ok := f[id.String()]
	return u, ok && u != ""
}

func TestResolveAll(t *testing.T) {
	ids := []*fedid.Identity{
		fedid.New("alice", "example.social", ""),
		fedid.New("bob", "fedi.example", ""),
	}
	lookup := fakeLookup{"alice@example.social": "https://example.social/users/alice"}

	got, err := resolveAll(context.Background(), lookup, ids)
	if err != nil {
		t.Fatalf("resolveAll() error = %v", err)
	}
	want := []resolvedID{
		{ID: "alice@example.social", Status: fedid.StatusExists, URL: "https://example.social/users/alice"},
		{ID: "bob@fedi.example", Status: fedid.StatusNotFound, URL: "https://fedi.example/@bob"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("resolveAll() mismatch (-want +got):\n%s", diff)
	}
}

func TestUnconfirmedHosts(t *testing.T) {
	recs := []*profile.Record{
		{ID: "1", Handle: "Alice", Bio: "find me at fedi.example/@alice or alice@example.social, also alice@fedi.example"},
		{ID: "2", Handle: "bob", Bio: "https://other.example/@bob"},
		{ID: "3", Handle: "carol", Bio: "nothing here"},
	}
	ex := extract.New(nil)
	set := ex.ExtractBatch(context.Background(), recs)

	tests := []struct {
		self string
		want []string
	}{
		{"", nil},
		{"@alice", []string{"fedi.example"}},
		{"1", []string{"fedi.example"}},
		{"bob", []string{"other.example"}},
		{"carol", nil},
		{"nobody", nil},
	}
	for _, tt := range tests {
		t.Run(tt.self, func(t *testing.T) {
			got := unconfirmedHosts(ex, set, recs, tt.self)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("unconfirmedHosts(%q) mismatch (-want +got):\n%s", tt.self, diff)
			}
		})
	}
}

func TestGroupReports(t *testing.T) {
	alice := results.NewUser("1", "Alice", "alice", "", []*fedid.Identity{fedid.New("alice", "example.social", "")}, nil)
	groups := instance.GroupByInstance(context.Background(), []*results.User{alice}, nil, nil)
	got := groupReports(groups)
	if len(got) != 1 {
		t.Fatalf("groupReports() = %v, want one group", got)
	}
	if got[0].Host != "example.social" || !cmp.Equal(got[0].Members, []string{"alice@example.social"}) {
		t.Errorf("groupReports() = %+v", got[0])
	}
}

func TestLiveFetcherIsUncached(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"links":[]}`)) //nolint:errcheck,gosec // test server
	}))
	defer server.Close()

	f := liveFetcher()
	for range 2 {
		if _, err := f.Get(context.Background(), server.URL+"/.well-known/nodeinfo", "application/json"); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
}
