package instance

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/codeGROOVE-dev/fediscan/pkg/fedid"
	"github.com/codeGROOVE-dev/fediscan/pkg/results"
)

// Lookup returns stored metadata for a host.
type Lookup interface {
	Instance(ctx context.Context, host string) (*Instance, error)
}

// Member is one identity of one user on an instance.
type Member struct {
	User *results.User    `json:"user"`
	ID   *fedid.Identity `json:"id"`
}

// Group is every member found on one instance.
type Group struct {
	Instance *Instance `json:"instance"`
	Members  []Member  `json:"members"`
}

// GroupByInstance buckets every identity of users by host. Hosts the lookup does
// not know, or fails on, get a naked instance. Groups are ordered mastodon first,
// then by software, live before dead, and larger groups first.
func GroupByInstance(ctx context.Context, users []*results.User, lookup Lookup, logger *slog.Logger) []Group {
	if logger == nil {
		logger = slog.Default()
	}
	byHost := make(map[string][]Member)
	var hosts []string
	for _, u := range users {
		for _, id := range u.IDs {
			if _, ok := byHost[id.Host]; !ok {
				hosts = append(hosts, id.Host)
			}
			byHost[id.Host] = append(byHost[id.Host], Member{User: u, ID: id})
		}
	}

	groups := make([]Group, 0, len(hosts))
	for _, h := range hosts {
		inst := Naked(h)
		if lookup != nil {
			found, err := lookup.Instance(ctx, h)
			switch {
			case err != nil:
				logger.DebugContext(ctx, "instance lookup failed", "host", h, "error", err)
			case found != nil:
				inst = found
			}
		}
		groups = append(groups, Group{Instance: inst, Members: byHost[h]})
	}

	slices.SortStableFunc(groups, func(a, b Group) int {
		return cmp.Or(
			cmp.Compare(a.Instance.softwareKey(), b.Instance.softwareKey()),
			cmp.Compare(deadRank(a.Instance), deadRank(b.Instance)),
			cmp.Compare(len(b.Members), len(a.Members)),
			cmp.Compare(a.Instance.Host, b.Instance.Host),
		)
	})
	return groups
}

func deadRank(i *Instance) int {
	if i.Dead {
		return 1
	}
	return 0
}

// ServiceStat counts identities per server software.
type ServiceStat struct {
	Software string `json:"software"`
	Count    int    `json:"count"`
}

// ServiceStats counts identities by software, most common first and "Unknown" last.
func ServiceStats(groups []Group) []ServiceStat {
	title := cases.Title(language.Und)
	counts := make(map[string]int)
	for _, g := range groups {
		name := "Unknown"
		if g.Instance.Software != "" {
			name = title.String(g.Instance.Software)
		}
		counts[name] += len(g.Members)
	}

	stats := make([]ServiceStat, 0, len(counts))
	for name, n := range counts {
		stats = append(stats, ServiceStat{Software: name, Count: n})
	}
	slices.SortFunc(stats, func(a, b ServiceStat) int {
		aUnknown, bUnknown := a.Software == "Unknown", b.Software == "Unknown"
		if aUnknown != bUnknown {
			if aUnknown {
				return 1
			}
			return -1
		}
		return cmp.Or(cmp.Compare(b.Count, a.Count), cmp.Compare(a.Software, b.Software))
	})
	return stats
}

// Relevance scores how over-represented an instance is among the scanned
// accounts relative to its size.
type Relevance struct {
	Instance *Instance `json:"instance"`
	Members  int       `json:"members"`
	Score    float64   `json:"score"`
	Relative float64   `json:"relative"` // percent of the top score
}

const (
	maxRelevant   = 20
	minRelevantBy = 3 // members needed before an instance is scored
)

// MostRelevant returns up to 20 instances ordered by relevance score, or nil if
// fewer than two instances qualify. Only instances with a known user count and at
// least three members are scored.
func MostRelevant(groups []Group) []Relevance {
	var out []Relevance
	for _, g := range groups {
		n := len(g.Members)
		if g.Instance.Users == nil || n < minRelevantBy {
			continue
		}
		users := float64(*g.Instance.Users)
		if users <= 1 || float64(n) >= users {
			continue
		}
		score := 1 / (-math.Log(float64(n)/users) * math.Log(users)) * 1000
		out = append(out, Relevance{Instance: g.Instance, Members: n, Score: score})
	}
	slices.SortStableFunc(out, func(a, b Relevance) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(out) > maxRelevant {
		out = out[:maxRelevant]
	}
	if len(out) <= 1 {
		return nil
	}
	top := out[0].Score
	for i := range out {
		out[i].Relative = out[i].Score / top * 100
	}
	return out
}
