// Package extract turns profile records into per-user identity results.
package extract

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/codeGROOVE-dev/fediscan/pkg/fedid"
	"github.com/codeGROOVE-dev/fediscan/pkg/hostcheck"
	"github.com/codeGROOVE-dev/fediscan/pkg/metrics"
	"github.com/codeGROOVE-dev/fediscan/pkg/parse"
	"github.com/codeGROOVE-dev/fediscan/pkg/profile"
	"github.com/codeGROOVE-dev/fediscan/pkg/results"
)

// keywordPattern selects bio lines that hint at a fediverse presence.
var keywordPattern = regexp.MustCompile(`(?i)(mastodon|toot|tröt|fedi)`)

// Extractor scans profile records. It is safe for concurrent use if its oracle is.
type Extractor struct {
	strict *parse.Parser
	loose  *parse.Parser
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

// New creates an Extractor that validates hosts against oracle.
func New(oracle hostcheck.Oracle, opts ...Option) *Extractor {
	e := &Extractor{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	e.strict = parse.NewParser(hostcheck.New(oracle, hostcheck.WithLogger(e.logger)), parse.WithLogger(e.logger))
	e.loose = parse.NewParser(hostcheck.New(hostcheck.Permissive, hostcheck.WithLogger(e.logger)), parse.WithLogger(e.logger))
	return e
}

// Extract scans one record.
func (e *Extractor) Extract(rec *profile.Record) *results.User {
	if rec == nil {
		return &results.User{}
	}
	metrics.ProfilesScanned.Inc()

	ids := e.identities(e.strict, rec)
	var extras []string
	if len(ids) == 0 {
		extras = keywordLines(rec.Bio)
	}
	return results.NewUser(rec.ID, rec.Name, rec.Handle, rec.Bio, ids, extras)
}

// ExtractBatch scans recs into a new Set. Every record is counted as scanned;
// records without an ID are otherwise skipped.
func (e *Extractor) ExtractBatch(ctx context.Context, recs []*profile.Record) *results.Set {
	set := results.NewSet()
	for _, rec := range recs {
		set.Scanned++
		if rec == nil || rec.ID == "" {
			e.logger.DebugContext(ctx, "skipping record without id")
			continue
		}
		set.Add(e.Extract(rec))
	}
	confirmed, possible := set.Results()
	e.logger.InfoContext(ctx, "batch extracted",
		"scanned", set.Scanned, "confirmed", len(confirmed), "possible", len(possible))
	return set
}

// Unconfirmed returns identities in rec that pass every rule except the oracle:
// a host nobody has vouched for yet. user is the result Extract already produced
// for rec; only the permissive parser runs, so the oracle is not consulted again.
// Used to warn users about their own profile.
func (e *Extractor) Unconfirmed(rec *profile.Record, user *results.User) []*fedid.Identity {
	if rec == nil {
		return nil
	}
	confirmed := make(map[fedid.Key]bool)
	if user != nil {
		for _, id := range user.IDs {
			confirmed[id.Key()] = true
		}
	}
	var out []*fedid.Identity
	for _, id := range e.identities(e.loose, rec) {
		if !confirmed[id.Key()] {
			out = append(out, id)
		}
	}
	return out
}

func (e *Extractor) identities(p *parse.Parser, rec *profile.Record) []*fedid.Identity {
	return p.Identities(parse.Collect(rec.Texts(), rec.URLs()))
}

// keywordLines returns bio lines that mention the network, or nil.
func keywordLines(bio string) []string {
	var out []string
	for line := range strings.Lines(bio) {
		line = strings.TrimRight(line, "\r\n")
		if keywordPattern.MatchString(line) {
			out = append(out, line)
		}
	}
	return out
}

// Extract scans one record with a default Extractor.
func Extract(rec *profile.Record, oracle hostcheck.Oracle) *results.User {
	return New(oracle).Extract(rec)
}

// Batch scans recs with a default Extractor.
func Batch(ctx context.Context, recs []*profile.Record, oracle hostcheck.Oracle) *results.Set {
	return New(oracle).ExtractBatch(ctx, recs)
}
