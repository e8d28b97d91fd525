// Package fedid defines the federated identity value type (local@host) shared by
// the extraction, aggregation and resolution packages.
package fedid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrInvalid is returned by Parse when the input is not of the form local@host.
var ErrInvalid = errors.New("invalid federated identity")

// Status is the outcome of an existence lookup.
type Status int

// Existence states. StatusUnknown is also the state of an identity that has not been resolved.
const (
	StatusUnknown Status = iota
	StatusExists
	StatusNotFound
	StatusForbidden
	StatusError
)

var statusNames = [...]string{
	StatusUnknown:   "unknown",
	StatusExists:    "exists",
	StatusNotFound:  "not_found",
	StatusForbidden: "forbidden",
	StatusError:     "error",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return statusNames[StatusUnknown]
	}
	return statusNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if name == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// Lookup performs the network side of identity resolution.
// Implementations must not panic and must map failures to a Status.
type Lookup interface {
	Exists(ctx context.Context, id *Identity) Status
	ProfilePage(ctx context.Context, id *Identity) (string, bool)
}

// Identity is a federated account address. Local and Host are always lowercase.
// Identities must be handled by pointer: the memoized lookups are tied to the instance.
type Identity struct {
	Local    string `json:"local"`
	Host     string `json:"host"`
	Original string `json:"original,omitempty"` // text or URL the identity was extracted from

	existsOnce sync.Once
	exists     Status
	urlOnce    sync.Once
	url        string
}

// New returns an identity with normalized parts. It does not validate them.
func New(local, host, original string) *Identity {
	return &Identity{
		Local:    strings.ToLower(local),
		Host:     strings.ToLower(host),
		Original: original,
	}
}

// Parse parses "local@host", tolerating a leading "@" or "acct:".
func Parse(s string) (*Identity, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "acct:")
	s = strings.TrimPrefix(s, "@")
	local, host, ok := strings.Cut(s, "@")
	if !ok || local == "" || host == "" || strings.Contains(host, "@") {
		return nil, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	if !ValidLocal(local) {
		return nil, fmt.Errorf("%w: bad local part %q", ErrInvalid, local)
	}
	return New(local, host, ""), nil
}

// ValidLocal reports whether s is non-empty and uses only [A-Za-z0-9_.-].
func ValidLocal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isLower := r >= 'a' && r <= 'z'
		isUpper := r >= 'A' && r <= 'Z'
		isDigit := r >= '0' && r <= '9'
		if !isLower && !isUpper && !isDigit && r != '_' && r != '.' && r != '-' {
			return false
		}
	}
	return true
}

func (id *Identity) String() string {
	return id.Local + "@" + id.Host
}

// Key is the equality key of an identity.
type Key struct {
	Local string
	Host  string
}

// Key returns the (local, host) pair identities are compared by.
func (id *Identity) Key() Key {
	return Key{Local: id.Local, Host: id.Host}
}

// Equal reports whether both identities name the same account.
func (id *Identity) Equal(other *Identity) bool {
	return other != nil && id.Local == other.Local && id.Host == other.Host
}

// Compare orders identities by their string form.
func Compare(a, b *Identity) int {
	return strings.Compare(a.String(), b.String())
}

// DefaultURL is the profile URL shape used when WebFinger does not name one.
func (id *Identity) DefaultURL() string {
	return "https://" + id.Host + "/@" + id.Local
}

// Existence resolves whether the account exists. The lookup runs at most once per
// identity; later calls return the cached status.
func (id *Identity) Existence(ctx context.Context, l Lookup) Status {
	id.existsOnce.Do(func() {
		if l == nil {
			id.exists = StatusUnknown
			return
		}
		id.exists = l.Exists(ctx, id)
	})
	return id.exists
}

// ProfileURL returns the canonical profile page, falling back to DefaultURL.
// Like Existence, it is computed once.
func (id *Identity) ProfileURL(ctx context.Context, l Lookup) string {
	id.urlOnce.Do(func() {
		if l != nil {
			if u, ok := l.ProfilePage(ctx, id); ok {
				id.url = u
				return
			}
		}
		id.url = id.DefaultURL()
	})
	return id.url
}
