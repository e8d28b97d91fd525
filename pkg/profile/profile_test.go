package profile

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRecordURLs(t *testing.T) {
	r := &Record{
		ID: "1",
		Links: []Link{
			{URL: "https://t.co/abc", Expanded: "https://example.social/@alice"},
			{URL: "https://example.com"},
			{},
		},
		Pinned: &Post{ID: "9", Text: "pinned", Links: []Link{{URL: "https://t.co/x", Expanded: "https://fedi.example/@bob"}}},
	}
	want := []string{"https://example.social/@alice", "https://example.com", "https://fedi.example/@bob"}
	if diff := cmp.Diff(want, r.URLs()); diff != "" {
		t.Errorf("URLs() mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordTexts(t *testing.T) {
	r := &Record{Name: "n", Location: "l", Bio: "b"}
	if diff := cmp.Diff([]string{"n", "l", "b"}, r.Texts()); diff != "" {
		t.Errorf("Texts() mismatch (-want +got):\n%s", diff)
	}
	r.Pinned = &Post{Text: "p"}
	if diff := cmp.Diff([]string{"n", "l", "b", "p"}, r.Texts()); diff != "" {
		t.Errorf("Texts() with pinned mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeLists(t *testing.T) {
	n := 3
	owned := []List{{ID: "1", Name: "mine", Origin: OriginOwned}, {ID: "2", Name: "also mine", Origin: OriginOwned}}
	followed := []List{
		{ID: "2", Name: "also mine", Origin: OriginFollowing},
		{ID: "3", Name: "theirs", MemberCount: &n, Origin: OriginFollowing},
		{ID: "3", Name: "dup", Origin: OriginFollowing},
	}
	got := MergeLists(owned, followed)
	var ids []string
	for _, l := range got {
		ids = append(ids, l.ID)
	}
	if diff := cmp.Diff([]string{"1", "2", "3"}, ids); diff != "" {
		t.Errorf("MergeLists() ids mismatch (-want +got):\n%s", diff)
	}
	if got[1].Origin != OriginOwned {
		t.Errorf("owned list should win, got origin %q", got[1].Origin)
	}
	if got[2].String() != "theirs (3)" {
		t.Errorf("String() = %q, want %q", got[2].String(), "theirs (3)")
	}
}

func TestPseudolist(t *testing.T) {
	tests := []struct {
		id          string
		wantOK      bool
		wantPrivate bool
	}{
		{"following", true, false},
		{"followers", true, false},
		{"blocked", true, true},
		{"muted", true, true},
		{"likes", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			l, ok := Pseudolist(tt.id)
			if ok != tt.wantOK {
				t.Fatalf("Pseudolist(%q) ok = %v, want %v", tt.id, ok, tt.wantOK)
			}
			if l.Private != tt.wantPrivate {
				t.Errorf("Pseudolist(%q).Private = %v, want %v", tt.id, l.Private, tt.wantPrivate)
			}
		})
	}
}
