package profile

import "strconv"

// Origin says where a list came from.
type Origin string

// List origins.
const (
	OriginOwned     Origin = "owned"
	OriginFollowing Origin = "following"
	OriginBuiltin   Origin = "builtin"
)

// List describes a set of accounts that can be scanned. Lists are equal when their IDs are.
type List struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount *int   `json:"member_count,omitempty"` // nil when unknown
	Origin      Origin `json:"origin"`
	Private     bool   `json:"private,omitempty"` // only readable by the owner
}

func (l List) String() string {
	if l.MemberCount == nil {
		return l.Name
	}
	return l.Name + " (" + strconv.Itoa(*l.MemberCount) + ")"
}

// Built-in pseudolists.
var (
	Following = List{ID: "following", Name: "Followed accounts", Origin: OriginBuiltin}
	Followers = List{ID: "followers", Name: "Followers", Origin: OriginBuiltin}
	Blocked   = List{ID: "blocked", Name: "Blocked accounts", Origin: OriginBuiltin, Private: true}
	Muted     = List{ID: "muted", Name: "Muted accounts", Origin: OriginBuiltin, Private: true}
)

// Pseudolists returns the built-in lists in display order.
func Pseudolists() []List {
	return []List{Following, Followers, Blocked, Muted}
}

// Pseudolist returns the built-in list with the given ID.
func Pseudolist(id string) (List, bool) {
	for _, l := range Pseudolists() {
		if l.ID == id {
			return l, true
		}
	}
	return List{}, false
}

// MergeLists returns owned followed by the followed lists that are not already owned.
func MergeLists(owned, followed []List) []List {
	seen := make(map[string]bool, len(owned))
	out := make([]List, 0, len(owned)+len(followed))
	for _, l := range owned {
		seen[l.ID] = true
		out = append(out, l)
	}
	for _, l := range followed {
		if seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		out = append(out, l)
	}
	return out
}
