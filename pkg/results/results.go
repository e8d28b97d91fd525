// Package results aggregates per-user extraction outcomes across pages and batches.
package results

import (
	"cmp"
	"slices"

	"github.com/codeGROOVE-dev/fediscan/pkg/fedid"
)

// User is one profile's extraction outcome.
type User struct {
	ID     string            `json:"id"`
	Name   string            `json:"name,omitempty"`
	Handle string            `json:"handle,omitempty"`
	Bio    string            `json:"bio,omitempty"`
	IDs    []*fedid.Identity `json:"ids,omitempty"`    // sorted by string form, unique
	Extras []string          `json:"extras,omitempty"` // keyword bio lines; only set when IDs is empty
}

// NewUser builds a User, normalizing ids and extras into sorted, duplicate-free lists.
func NewUser(id, name, handle, bio string, ids []*fedid.Identity, extras []string) *User {
	u := &User{ID: id, Name: name, Handle: handle, Bio: bio}
	u.IDs = unionIDs(nil, ids)
	if len(u.IDs) == 0 {
		u.Extras = unionExtras(nil, extras)
	}
	return u
}

// Merge unions other into u. It is a no-op if the source IDs differ.
// Once u has any identity, its extras are dropped.
func (u *User) Merge(other *User) {
	if other == nil || other.ID != u.ID {
		return
	}
	u.IDs = unionIDs(u.IDs, other.IDs)
	if len(u.IDs) > 0 {
		u.Extras = nil
		return
	}
	u.Extras = unionExtras(u.Extras, other.Extras)
}

func (u *User) clone() *User {
	c := *u
	c.IDs = slices.Clone(u.IDs)
	c.Extras = slices.Clone(u.Extras)
	return &c
}

func unionIDs(a, b []*fedid.Identity) []*fedid.Identity {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[fedid.Key]bool, len(a)+len(b))
	out := make([]*fedid.Identity, 0, len(a)+len(b))
	for _, id := range slices.Concat(a, b) {
		if id == nil || seen[id.Key()] {
			continue
		}
		seen[id.Key()] = true
		out = append(out, id)
	}
	slices.SortStableFunc(out, fedid.Compare)
	return out
}

func unionExtras(a, b []string) []string {
	out := slices.Concat(a, b)
	if len(out) == 0 {
		return nil
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Set accumulates users by source ID. It is not safe for concurrent mutation.
type Set struct {
	users   map[string]*User
	Scanned int // profiles examined, including those that produced nothing
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{users: make(map[string]*User)}
}

// Add inserts u, merging it into an existing entry with the same ID.
// The set stores its own copy of u.
func (s *Set) Add(u *User) {
	if u == nil {
		return
	}
	if s.users == nil {
		s.users = make(map[string]*User)
	}
	if cur, ok := s.users[u.ID]; ok {
		cur.Merge(u)
		return
	}
	s.users[u.ID] = u.clone()
}

// Merge adds every user of other and its scanned count.
func (s *Set) Merge(other *Set) {
	if other == nil {
		return
	}
	for _, u := range other.users {
		s.Add(u)
	}
	s.Scanned += other.Scanned
}

// Len returns the number of distinct users.
func (s *Set) Len() int {
	return len(s.users)
}

// Get returns the user with the given source ID.
func (s *Set) Get(id string) (*User, bool) {
	u, ok := s.users[id]
	return u, ok
}

// Results returns users with at least one identity, and users with none but
// at least one keyword line. Both are sorted by handle (byte order), then ID.
func (s *Set) Results() (confirmed, possible []*User) {
	for _, u := range s.users {
		switch {
		case len(u.IDs) > 0:
			confirmed = append(confirmed, u)
		case len(u.Extras) > 0:
			possible = append(possible, u)
		}
	}
	byHandle := func(a, b *User) int {
		return cmp.Or(cmp.Compare(a.Handle, b.Handle), cmp.Compare(a.ID, b.ID))
	}
	slices.SortFunc(confirmed, byHandle)
	slices.SortFunc(possible, byHandle)
	return confirmed, possible
}

// Identities returns every distinct identity across users, sorted by string form.
func Identities(users []*User) []*fedid.Identity {
	var all []*fedid.Identity
	for _, u := range users {
		all = append(all, u.IDs...)
	}
	return unionIDs(nil, all)
}
