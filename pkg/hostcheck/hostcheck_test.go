package hostcheck

import (
	"errors"
	"testing"
)

func TestIsForbidden(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"gmail.com", true},
		{"GMAIL.COM", true},
		{"mail.gmail.com", true},
		{"a.b.c.twitter.com", true},
		{"jabber.ccc.de", true},
		{"ccc.de", false},
		{"notgmail.com", false},
		{"mastodon.social", false},
		{"example.social", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			if got := IsForbidden(tt.host); got != tt.want {
				t.Errorf("IsForbidden(%q) = %v, want %v", tt.host, got, tt.want)
			}
		})
	}
}

func TestMatchesKeyword(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"example.social", true},
		{"masto.host", true},
		{"mastodon.example", true},
		{"Mastodon.Example", true},
		{"socialists.org", false},
		{"mastodonte.fr", false},
		{"fedi.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			if got := MatchesKeyword(tt.host); got != tt.want {
				t.Errorf("MatchesKeyword(%q) = %v, want %v", tt.host, got, tt.want)
			}
		})
	}
}

type errOracle struct{}

func (errOracle) KnownHost(string) (bool, error) { return true, errors.New("db down") }

type panicOracle struct{}

func (panicOracle) KnownHost(string) (bool, error) { panic("boom") }

func TestValidate(t *testing.T) {
	known := OracleFunc(func(h string) bool { return h == "fedi.example" })

	tests := []struct {
		name   string
		oracle Oracle
		host   string
		mode   Mode
		want   bool
	}{
		{"lax accepts anything allowed", nil, "whatever.example", Lax, true},
		{"lax rejects forbidden", Permissive, "gmail.com", Lax, false},
		{"strict keyword", nil, "example.social", Strict, true},
		{"strict oracle", known, "fedi.example", Strict, true},
		{"strict unknown", known, "other.example", Strict, false},
		{"strict no oracle", nil, "fedi.example", Strict, false},
		{"strict forbidden beats oracle", Permissive, "gmail.com", Strict, false},
		{"strict forbidden subdomain beats oracle", Permissive, "social.gmail.com", Strict, false},
		{"oracle error is false", errOracle{}, "fedi.example", Strict, false},
		{"oracle panic is false", panicOracle{}, "fedi.example", Strict, false},
		{"uppercase host", known, "FEDI.EXAMPLE", Strict, true},
		{"empty host", Permissive, "", Lax, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(tt.oracle)
			if got := v.Validate(tt.host, tt.mode); got != tt.want {
				t.Errorf("Validate(%q, %v) = %v, want %v", tt.host, tt.mode, got, tt.want)
			}
		})
	}
}

type recordingOracle struct{ asked []string }

func (o *recordingOracle) KnownHost(host string) (bool, error) {
	o.asked = append(o.asked, host)
	return false, nil
}

func TestOracleSeesEveryAllowedHost(t *testing.T) {
	tests := []struct {
		host string
		mode Mode
		want bool
	}{
		{"newhost.xyz", Lax, true},
		{"masto.social", Strict, true},
		{"other.example", Strict, false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			o := &recordingOracle{}
			if got := New(o).Validate(tt.host, tt.mode); got != tt.want {
				t.Errorf("Validate(%q, %v) = %v, want %v", tt.host, tt.mode, got, tt.want)
			}
			if len(o.asked) != 1 || o.asked[0] != tt.host {
				t.Errorf("oracle asked %v, want [%s]", o.asked, tt.host)
			}
		})
	}

	o := &recordingOracle{}
	v := New(o)
	v.Validate("gmail.com", Lax)
	v.Validate("mail.gmail.com", Strict)
	if len(o.asked) != 0 {
		t.Errorf("oracle asked about forbidden hosts: %v", o.asked)
	}
}

func TestLaxIsSuperset(t *testing.T) {
	oracles := []Oracle{nil, Permissive, OracleFunc(func(string) bool { return false }), errOracle{}}
	hosts := []string{
		"example.social", "fedi.example", "gmail.com", "sub.youtube.com",
		"mastodon.example", "x", "a.b.c", "FOO.SOCIAL",
	}
	for _, o := range oracles {
		v := New(o)
		for _, h := range hosts {
			if v.Validate(h, Strict) && !v.Validate(h, Lax) {
				t.Errorf("host %q passes strict but not lax", h)
			}
		}
	}
}

func TestMakeIdentity(t *testing.T) {
	v := New(Permissive)

	tests := []struct {
		local, host string
		mode        Mode
		want        string
	}{
		{"Alice", "Example.Social", Strict, "alice@example.social"},
		{"bob.b-b_1", "fedi.example", Strict, "bob.b-b_1@fedi.example"},
		{"alice", "gmail.com", Lax, ""},
		{"alice", "gmail.com", Strict, ""},
		{"al!ce", "fedi.example", Lax, ""},
		{"", "fedi.example", Lax, ""},
		{"jörg", "fedi.example", Lax, ""},
		{"alice", "example.social.", Strict, "alice@example.social"},
		{"alice", "fedi.example..", Lax, "alice@fedi.example"},
		{"alice", "gmail.com.", Lax, ""},
		{"alice", "...", Lax, ""},
	}

	for _, tt := range tests {
		t.Run(tt.local+"@"+tt.host, func(t *testing.T) {
			got := v.MakeIdentity(tt.local, tt.host, "src", tt.mode)
			if tt.want == "" {
				if got != nil {
					t.Errorf("MakeIdentity() = %v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("MakeIdentity() = nil, want %s", tt.want)
			}
			if got.String() != tt.want {
				t.Errorf("MakeIdentity() = %s, want %s", got, tt.want)
			}
			if got.Original != "src" {
				t.Errorf("Original = %q, want %q", got.Original, "src")
			}
		})
	}
}

func TestZeroValidator(t *testing.T) {
	var v Validator
	if v.Validate("fedi.example", Strict) {
		t.Error("zero validator should reject unknown hosts in strict mode")
	}
	if !v.Validate("fedi.example", Lax) {
		t.Error("zero validator should accept allowed hosts in lax mode")
	}
}
