package extract

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/codeGROOVE-dev/fediscan/pkg/fedid"
	"github.com/codeGROOVE-dev/fediscan/pkg/hostcheck"
	"github.com/codeGROOVE-dev/fediscan/pkg/profile"
)

func strs(ids []*fedid.Identity) []string {
	var out []string
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func TestExtract(t *testing.T) {
	oracle := hostcheck.OracleFunc(func(h string) bool { return h == "fedi.example" })

	tests := []struct {
		name       string
		rec        *profile.Record
		wantIDs    []string
		wantExtras []string
	}{
		{
			name:    "explicit mention in name",
			rec:     &profile.Record{ID: "1", Name: "I moved! @alice@example.social"},
			wantIDs: []string{"alice@example.social"},
		},
		{
			name:    "path text in bio",
			rec:     &profile.Record{ID: "2", Bio: "find me at fedi.example/@bob"},
			wantIDs: []string{"bob@fedi.example"},
		},
		{
			name: "nothing here",
			rec:  &profile.Record{ID: "3", Bio: "nothing here"},
		},
		{
			name:       "keyword lines become extras",
			rec:        &profile.Record{ID: "4", Bio: "Dad. Coder.\nAlso on Mastodon, ask me\nToots welcome\nno"},
			wantExtras: []string{"Also on Mastodon, ask me", "Toots welcome"},
		},
		{
			name: "expanded link and pinned post",
			rec: &profile.Record{
				ID:     "5",
				Links:  []profile.Link{{URL: "https://t.co/x", Expanded: "https://fedi.example/@carol"}},
				Pinned: &profile.Post{Text: "new home: @carol@other.example", Links: []profile.Link{{URL: "https://example.social/@carol2"}}},
			},
			wantIDs: []string{"carol2@example.social", "carol@fedi.example", "carol@other.example"},
		},
		{
			name:    "location field",
			rec:     &profile.Record{ID: "6", Location: "Berlin / @dave@berlin.social"},
			wantIDs: []string{"dave@berlin.social"},
		},
		{
			name:       "bare mention on unknown host stays unconfirmed",
			rec:        &profile.Record{ID: "7", Bio: "fedi: erin@unknown.example"},
			wantExtras: []string{"fedi: erin@unknown.example"},
		},
		{
			name: "forbidden host",
			rec:  &profile.Record{ID: "8", Bio: "@alice@gmail.com"},
		},
		{
			name:    "duplicates collapse",
			rec:     &profile.Record{ID: "9", Name: "@Frank@Example.Social", Bio: "example.social/@frank https://example.social/@frank"},
			wantIDs: []string{"frank@example.social"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.rec, oracle)
			if diff := cmp.Diff(tt.wantIDs, strs(got.IDs)); diff != "" {
				t.Errorf("IDs mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantExtras, got.Extras); diff != "" {
				t.Errorf("Extras mismatch (-want +got):\n%s", diff)
			}
			if got.ID != tt.rec.ID {
				t.Errorf("ID = %q, want %q", got.ID, tt.rec.ID)
			}
		})
	}
}

func TestExtractProvenance(t *testing.T) {
	got := Extract(&profile.Record{ID: "1", Name: "@alice@example.social."}, nil)
	if len(got.IDs) != 1 {
		t.Fatalf("IDs = %v", strs(got.IDs))
	}
	if got.IDs[0].Original != "alice@example.social" {
		t.Errorf("Original = %q, want %q", got.IDs[0].Original, "alice@example.social")
	}
}

func TestExtractMalformed(t *testing.T) {
	recs := []*profile.Record{
		nil,
		{ID: "1", Links: []profile.Link{{URL: "::::"}, {URL: "http://[::1"}, {Expanded: "mailto:a@b.c"}}},
		{ID: "2", Bio: "@@@ @.@. @a@ @@b.c", Pinned: &profile.Post{}},
		{ID: "3", Name: "\x00\xff", Bio: "\n\n\r\n"},
	}
	for _, rec := range recs {
		got := Extract(rec, hostcheck.Permissive)
		if got == nil {
			t.Fatalf("Extract(%+v) = nil", rec)
		}
	}
}

func TestExtractBatch(t *testing.T) {
	recs := []*profile.Record{
		{ID: "1", Handle: "zed", Bio: "@zed@example.social"},
		{ID: "2", Handle: "amy", Bio: "fediverse soon"},
		{ID: "", Handle: "ghost", Bio: "@ghost@example.social"},
		{ID: "1", Handle: "zed", Name: "@zed@second.social"},
		{ID: "3", Handle: "bob", Bio: "nothing"},
	}

	set := Batch(context.Background(), recs, nil)
	if set.Scanned != 5 {
		t.Errorf("Scanned = %d, want 5", set.Scanned)
	}
	if set.Len() != 3 {
		t.Errorf("Len() = %d, want 3", set.Len())
	}

	confirmed, possible := set.Results()
	if len(confirmed) != 1 {
		t.Fatalf("confirmed = %d users, want 1", len(confirmed))
	}
	if diff := cmp.Diff([]string{"zed@example.social", "zed@second.social"}, strs(confirmed[0].IDs)); diff != "" {
		t.Errorf("merged IDs mismatch (-want +got):\n%s", diff)
	}
	if len(possible) != 1 || possible[0].Handle != "amy" {
		t.Errorf("possible = %v, want [amy]", possible)
	}
}

type countingOracle struct{ calls int }

func (o *countingOracle) KnownHost(host string) (bool, error) {
	o.calls++
	return host == "known.example", nil
}

func TestUnconfirmed(t *testing.T) {
	oracle := &countingOracle{}
	e := New(oracle)
	rec := &profile.Record{
		ID:  "1",
		Bio: "me: alice@known.example, alt: alice@new.example, old: bob@example.social, mail: x@gmail.com",
	}

	user := e.Extract(rec)
	calls := oracle.calls
	got := strs(e.Unconfirmed(rec, user))
	if diff := cmp.Diff([]string{"alice@new.example"}, got); diff != "" {
		t.Errorf("Unconfirmed() mismatch (-want +got):\n%s", diff)
	}
	if oracle.calls != calls {
		t.Errorf("Unconfirmed() asked the oracle %d more times, want 0", oracle.calls-calls)
	}

	all := strs(e.Unconfirmed(rec, nil))
	if diff := cmp.Diff([]string{"alice@known.example", "alice@new.example", "bob@example.social"}, all); diff != "" {
		t.Errorf("Unconfirmed(rec, nil) mismatch (-want +got):\n%s", diff)
	}
	if e.Unconfirmed(nil, nil) != nil {
		t.Error("Unconfirmed(nil) should be nil")
	}
}

func TestKeywordLines(t *testing.T) {
	tests := []struct {
		bio  string
		want []string
	}{
		{"", nil},
		{"nothing here", nil},
		{"Trötet gern\nnope", []string{"Trötet gern"}},
		{"FEDI\r\nmastodon", []string{"FEDI", "mastodon"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, keywordLines(tt.bio)); diff != "" {
			t.Errorf("keywordLines(%q) mismatch (-want +got):\n%s", tt.bio, diff)
		}
	}
}
