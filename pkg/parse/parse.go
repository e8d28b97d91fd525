// Package parse finds candidate federated identities in profile text and URLs.
//
// Four strategies are applied, in this order:
//
//   - Mentions: "@alice@example.social", "🐘 alice@example.social", "Mastodon: alice@example.social"
//   - URL: a link annotation, e.g. "https://example.social/web/@alice"
//   - PathText: URL-like text such as "example.social/@alice" that was never linkified
//   - TextURLs: URLs embedded anywhere in free text
//
// Collect gathers candidates from all of them; a Parser turns candidates into
// identities by applying host validation.
package parse

import (
	"log/slog"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"mvdan.cc/xurls/v2"

	"github.com/codeGROOVE-dev/fediscan/pkg/fedid"
	"github.com/codeGROOVE-dev/fediscan/pkg/hostcheck"
	"github.com/codeGROOVE-dev/fediscan/pkg/metrics"
)

// Strategy names the rule that produced a candidate.
type Strategy string

// Strategies.
const (
	StrategyMention   Strategy = "mention"
	StrategyPathText  Strategy = "path_text"
	StrategyEntityURL Strategy = "entity_url"
	StrategyTextURL   Strategy = "text_url"
)

// word is the Unicode-aware equivalent of \w plus '.' and '-'.
const word = `[\p{L}\p{N}_.\-]`

var (
	mentionPattern  = regexp.MustCompile(`(?i)(@|🐘|mastodon:?)?\s*?(` + word + `+@` + word + `+\.` + word + `+)`)
	pathTextPattern = regexp.MustCompile(`(?i)\b((https?://)?(` + word + `+\.` + word + `+)/(web/)?@(` + word + `+))/?\b`)
	urlPathPattern  = regexp.MustCompile(`(?i)^/(@|web/@?)(` + word + `+)(/.*|[.:,;!?()\[\]{}].*)?$`)

	textURLs = xurls.Relaxed()
)

// Candidate is a possible identity before host validation.
type Candidate struct {
	Local    string
	Host     string
	Original string   // matched text or URL
	Strategy Strategy // rule that produced it
	Certain  bool     // explicit mention marker seen; validate laxly
}

// Mode is the host validation mode the candidate needs.
func (c Candidate) Mode() hostcheck.Mode {
	if c.Certain {
		return hostcheck.Lax
	}
	return hostcheck.Strict
}

// Mentions finds "local@host" mentions in text. A leading "@", "🐘" or
// "mastodon:" marks the candidate as certain.
func Mentions(text string) []Candidate {
	var out []Candidate
	for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
		s := trimTrailingPunct(m[2])
		parts := strings.Split(s, "@")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		out = append(out, Candidate{
			Local:    parts[0],
			Host:     parts[1],
			Original: s,
			Strategy: StrategyMention,
			Certain:  m[1] != "",
		})
	}
	return out
}

// PathText finds "host/@local" and "host/web/@local" text that was not linkified.
func PathText(text string) []Candidate {
	var out []Candidate
	for _, m := range pathTextPattern.FindAllStringSubmatch(text, -1) {
		out = append(out, Candidate{
			Local:    m[5],
			Host:     m[3],
			Original: m[1],
			Strategy: StrategyPathText,
		})
	}
	return out
}

// URL parses a single profile URL such as "https://host/@local".
// It returns false for anything that is not an http(s) profile path.
func URL(raw string) (Candidate, bool) {
	c, ok := parseURL(raw)
	c.Strategy = StrategyEntityURL
	return c, ok
}

// TextURLs finds URLs in free text and parses each as a profile URL.
func TextURLs(text string) []Candidate {
	var out []Candidate
	for _, raw := range textURLs.FindAllString(text, -1) {
		if c, ok := parseURL(raw); ok {
			c.Strategy = StrategyTextURL
			out = append(out, c)
		}
	}
	return out
}

func parseURL(raw string) (Candidate, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return Candidate{}, false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		// "host/@local" parses as a relative path; reparse with an authority.
		u, err = url.Parse("//" + raw)
		if err != nil {
			return Candidate{}, false
		}
	default:
		return Candidate{}, false
	}
	host := u.Hostname()
	if host == "" {
		return Candidate{}, false
	}
	m := urlPathPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return Candidate{}, false
	}
	local := strings.TrimRight(m[2], ".")
	if local == "" {
		return Candidate{}, false
	}
	return Candidate{Local: local, Host: host, Original: raw}, true
}

// trimTrailingPunct drops one trailing rune that cannot end an identity,
// e.g. the period in "reach me at alice@example.social.".
func trimTrailingPunct(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	last := r[len(r)-1]
	if unicode.IsLetter(last) || unicode.IsDigit(last) || last == '_' {
		return s
	}
	return string(r[:len(r)-1])
}

// Collect runs every strategy and returns candidates in priority order: mentions
// in texts, then links, then path text and embedded URLs in texts.
func Collect(texts, links []string) []Candidate {
	var out []Candidate
	for _, t := range texts {
		out = append(out, Mentions(t)...)
	}
	for _, l := range links {
		if c, ok := URL(l); ok {
			out = append(out, c)
		}
	}
	for _, t := range texts {
		out = append(out, PathText(t)...)
		out = append(out, TextURLs(t)...)
	}
	return out
}

// Parser turns candidates into validated identities.
type Parser struct {
	validator *hostcheck.Validator
	logger    *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) { p.logger = logger }
}

// NewParser creates a Parser backed by validator.
func NewParser(validator *hostcheck.Validator, opts ...Option) *Parser {
	p := &Parser{validator: validator, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Identity validates one candidate. It returns nil if the candidate is rejected.
func (p *Parser) Identity(c Candidate) *fedid.Identity {
	id := p.validator.MakeIdentity(c.Local, c.Host, c.Original, c.Mode())
	if id == nil {
		metrics.CandidatesRejected.WithLabelValues(string(c.Strategy)).Inc()
		p.logger.Debug("candidate rejected", "candidate", c.Local+"@"+c.Host, "strategy", c.Strategy, "mode", c.Mode())
		return nil
	}
	return id
}

// Identities validates cands and returns the accepted identities, unique by
// (local, host) and sorted by string form. The first candidate for an identity
// supplies its provenance.
func (p *Parser) Identities(cands []Candidate) []*fedid.Identity {
	seen := make(map[fedid.Key]bool)
	var out []*fedid.Identity
	for _, c := range cands {
		id := p.Identity(c)
		if id == nil || seen[id.Key()] {
			continue
		}
		seen[id.Key()] = true
		metrics.IdentitiesFound.WithLabelValues(string(c.Strategy)).Inc()
		out = append(out, id)
	}
	slices.SortFunc(out, fedid.Compare)
	return out
}
