package webfinger

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codeGROOVE-dev/fediscan/pkg/fedid"
	"github.com/codeGROOVE-dev/fediscan/pkg/httpcache"
)

// newServer serves WebFinger for a fixed set of accounts and counts requests per path.
// With hostMeta set, host-meta points WebFinger at /custom/wf.
func newServer(t *testing.T, hostMeta bool) (*httptest.Server, *sync.Map) {
	t.Helper()
	var counts sync.Map
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := counts.LoadOrStore(r.URL.Path, new(atomic.Int32))
		n.(*atomic.Int32).Add(1)

		switch r.URL.Path {
		case "/.well-known/host-meta":
			if !hostMeta {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/xrd+xml")
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<XRD xmlns="http://docs.oasis-open.org/ns/xri/xrd-1.0">
  <Link rel="lrdd" template="https://%s/custom/wf?q={uri}"/>
</XRD>`, r.Host)
		case "/.well-known/webfinger", "/custom/wf":
			resource := r.URL.Query().Get("resource")
			if resource == "" {
				resource = r.URL.Query().Get("q")
			}
			local, _, _ := strings.Cut(strings.TrimPrefix(resource, "acct:"), "@")
			switch local {
			case "alice":
				w.Header().Set("Content-Type", "application/jrd+json")
				fmt.Fprintf(w, `{"subject":%q,"links":[
					{"rel":"self","type":"application/activity+json","href":"https://%s/users/alice"},
					{"rel":"http://webfinger.net/rel/profile-page","type":"text/html","href":"https://%s/@alice"}]}`,
					resource, r.Host, r.Host)
			case "nolink":
				fmt.Fprint(w, `{"links":[]}`)
			case "private":
				w.WriteHeader(http.StatusForbidden)
			case "broken":
				w.WriteHeader(http.StatusGone)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server, &counts
}

func count(m *sync.Map, path string) int32 {
	n, ok := m.Load(path)
	if !ok {
		return 0
	}
	return n.(*atomic.Int32).Load()
}

func hostOf(server *httptest.Server) string {
	return strings.TrimPrefix(server.URL, "https://")
}

func TestExists(t *testing.T) {
	server, _ := newServer(t, false)
	host := hostOf(server)
	c := New(httpcache.NewFetcher(nil, httpcache.WithHTTPClient(server.Client()), httpcache.WithRateInterval(0)))

	tests := []struct {
		local string
		want  fedid.Status
	}{
		{"alice", fedid.StatusExists},
		{"nobody", fedid.StatusNotFound},
		{"private", fedid.StatusForbidden},
		{"broken", fedid.StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.local, func(t *testing.T) {
			id := fedid.New(tt.local, host, "")
			if got := id.Existence(context.Background(), c); got != tt.want {
				t.Errorf("Existence(%s) = %v, want %v", id, got, tt.want)
			}
		})
	}
}

func TestExistsTransportError(t *testing.T) {
	server := httptest.NewTLSServer(http.NotFoundHandler())
	client := server.Client()
	host := hostOf(server)
	server.Close()

	c := New(httpcache.NewFetcher(nil, httpcache.WithHTTPClient(client), httpcache.WithRateInterval(0), httpcache.WithTimeout(2*time.Second)))
	id := fedid.New("alice", host, "")
	if got := id.Existence(context.Background(), c); got != fedid.StatusError {
		t.Errorf("Existence() = %v, want error", got)
	}
	if got := id.ProfileURL(context.Background(), c); got != "https://"+host+"/@alice" {
		t.Errorf("ProfileURL() = %q, want default URL", got)
	}
}

func TestProfileURL(t *testing.T) {
	server, _ := newServer(t, false)
	host := hostOf(server)
	c := New(httpcache.NewFetcher(nil, httpcache.WithHTTPClient(server.Client()), httpcache.WithRateInterval(0)))
	ctx := context.Background()

	if got, want := fedid.New("alice", host, "").ProfileURL(ctx, c), "https://"+host+"/@alice"; got != want {
		t.Errorf("ProfileURL(alice) = %q, want %q", got, want)
	}
	if _, ok := c.ProfilePage(ctx, fedid.New("nolink", host, "")); ok {
		t.Error("ProfilePage(nolink) should find nothing")
	}
	if got, want := fedid.New("nolink", host, "").ProfileURL(ctx, c), "https://"+host+"/@nolink"; got != want {
		t.Errorf("ProfileURL(nolink) = %q, want fallback %q", got, want)
	}
}

func TestResolutionIsMemoized(t *testing.T) {
	server, counts := newServer(t, false)
	host := hostOf(server)
	cache, err := httpcache.NewWithPath(time.Hour, t.TempDir())
	if err != nil {
		t.Fatalf("NewWithPath() failed: %v", err)
	}
	c := New(httpcache.NewFetcher(cache, httpcache.WithHTTPClient(server.Client()), httpcache.WithRateInterval(0)))
	id := fedid.New("alice", host, "")
	ctx := context.Background()

	for range 5 {
		if got := id.Existence(ctx, c); got != fedid.StatusExists {
			t.Fatalf("Existence() = %v, want exists", got)
		}
		if got := id.ProfileURL(ctx, c); got != "https://"+host+"/@alice" {
			t.Fatalf("ProfileURL() = %q", got)
		}
	}
	if n := count(counts, "/.well-known/webfinger"); n != 1 {
		t.Errorf("webfinger requests = %d, want 1", n)
	}
	if n := count(counts, "/.well-known/host-meta"); n != 1 {
		t.Errorf("host-meta requests = %d, want 1", n)
	}
}

func TestHostMetaTemplate(t *testing.T) {
	server, counts := newServer(t, true)
	c := New(httpcache.NewFetcher(nil, httpcache.WithHTTPClient(server.Client()), httpcache.WithRateInterval(0)))
	id := fedid.New("alice", hostOf(server), "")
	ctx := context.Background()

	want := server.URL + "/custom/wf?q=acct%3Aalice%40" + strings.ReplaceAll(hostOf(server), ":", "%3A")
	if got := c.URL(ctx, id); got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
	if got := id.Existence(ctx, c); got != fedid.StatusExists {
		t.Errorf("Existence() = %v, want exists", got)
	}
	if n := count(counts, "/custom/wf"); n != 1 {
		t.Errorf("custom template requests = %d, want 1", n)
	}
	if n := count(counts, "/.well-known/webfinger"); n != 0 {
		t.Errorf("default template requests = %d, want 0", n)
	}
	if n := count(counts, "/.well-known/host-meta"); n != 1 {
		t.Errorf("host-meta requests = %d, want 1 (template is memoized per host)", n)
	}
}

func TestParseHostMeta(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   string
		wantOK bool
	}{
		{
			name:   "mastodon",
			body:   `<?xml version="1.0"?><XRD xmlns="http://docs.oasis-open.org/ns/xri/xrd-1.0"><Link rel="lrdd" template="https://h/.well-known/webfinger?resource={uri}"/></XRD>`,
			want:   "https://h/.well-known/webfinger?resource={uri}",
			wantOK: true,
		},
		{
			name:   "first lrdd wins",
			body:   `<XRD><Link rel="other" template="x"/><Link rel="lrdd"/><Link rel="lrdd" template="a"/><Link rel="lrdd" template="b"/></XRD>`,
			want:   "a",
			wantOK: true,
		},
		{name: "wrong root", body: `<html><Link rel="lrdd" template="a"/></html>`},
		{name: "not xml", body: `{"links":[]}`},
		{name: "no lrdd", body: `<XRD></XRD>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseHostMeta([]byte(tt.body))
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("parseHostMeta() = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNormalizeProfileURL(t *testing.T) {
	tests := []struct {
		href   string
		want   string
		wantOK bool
	}{
		{"https://h.example/@a", "https://h.example/@a", true},
		{"http://h.example/@a", "http://h.example/@a", true},
		{"//h.example/@a", "https://h.example/@a", true},
		{"h.example/@a", "https://h.example/@a", true},
		{"ftp://h.example/@a", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := normalizeProfileURL(tt.href)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("normalizeProfileURL(%q) = %q, %v; want %q, %v", tt.href, got, ok, tt.want, tt.wantOK)
		}
	}
}
