// Package webfinger resolves federated identities via host-meta and WebFinger.
package webfinger

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/codeGROOVE-dev/fediscan/pkg/fedid"
	"github.com/codeGROOVE-dev/fediscan/pkg/httpcache"
	"github.com/codeGROOVE-dev/fediscan/pkg/metrics"
)

// WebFinger identifies profile pages with an http URI, not a real URL.
var profilePageRel = regexp.MustCompile(`(?i)^https?://webfinger\.net/rel/profile-page`)

// Getter fetches a URL. *httpcache.Fetcher implements it.
type Getter interface {
	Get(ctx context.Context, rawURL, accept string) ([]byte, error)
}

// Client implements fedid.Lookup.
type Client struct {
	get    Getter
	logger *slog.Logger

	mu        sync.Mutex
	templates map[string]string // host -> lrdd template
}

var _ fedid.Lookup = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a Client that fetches through get.
func New(get Getter, opts ...Option) *Client {
	c := &Client{get: get, logger: slog.Default(), templates: make(map[string]string)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exists queries WebFinger for id. It never returns an error; failures map to a status.
func (c *Client) Exists(ctx context.Context, id *fedid.Identity) fedid.Status {
	_, err := c.get.Get(ctx, c.URL(ctx, id), "application/jrd+json")
	st := statusOf(err)
	metrics.Resolutions.WithLabelValues(st.String()).Inc()
	c.logger.DebugContext(ctx, "webfinger existence", "id", id.String(), "status", st, "error", err)
	return st
}

func statusOf(err error) fedid.Status {
	if err == nil {
		return fedid.StatusExists
	}
	switch code := httpcache.StatusCode(err); code {
	case 0:
		return fedid.StatusError
	case http.StatusNotFound:
		return fedid.StatusNotFound
	case http.StatusForbidden:
		return fedid.StatusForbidden
	default:
		return fedid.StatusUnknown
	}
}

type jrd struct {
	Subject string `json:"subject"`
	Links   []struct {
		Rel  string `json:"rel"`
		Type string `json:"type"`
		Href string `json:"href"`
	} `json:"links"`
}

// ProfilePage returns the profile page link from id's WebFinger document.
func (c *Client) ProfilePage(ctx context.Context, id *fedid.Identity) (string, bool) {
	body, err := c.get.Get(ctx, c.URL(ctx, id), "application/jrd+json")
	if err != nil {
		c.logger.DebugContext(ctx, "webfinger lookup failed", "id", id.String(), "error", err)
		return "", false
	}

	var doc jrd
	if err := json.Unmarshal(body, &doc); err != nil {
		c.logger.DebugContext(ctx, "webfinger parse failed", "id", id.String(), "error", err)
		return "", false
	}

	for _, link := range doc.Links {
		if !profilePageRel.MatchString(link.Rel) {
			continue
		}
		if u, ok := normalizeProfileURL(link.Href); ok {
			c.logger.DebugContext(ctx, "profile page found", "id", id.String(), "url", u)
			return u, true
		}
	}
	return "", false
}

// normalizeProfileURL accepts http(s) and scheme-less URLs; the latter become https.
func normalizeProfileURL(href string) (string, bool) {
	if href == "" {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.String(), true
	case "":
		if u.Host == "" {
			if u, err = url.Parse("//" + href); err != nil || u.Host == "" {
				return "", false
			}
		}
		u.Scheme = "https"
		return u.String(), true
	default:
		return "", false
	}
}

// URL returns the WebFinger query URL for id.
func (c *Client) URL(ctx context.Context, id *fedid.Identity) string {
	uri := url.QueryEscape("acct:" + id.String())
	return strings.ReplaceAll(c.template(ctx, id.Host), "{uri}", uri)
}

// template returns the host's lrdd template from host-meta, or the well-known default.
func (c *Client) template(ctx context.Context, host string) string {
	c.mu.Lock()
	t, ok := c.templates[host]
	c.mu.Unlock()
	if ok {
		return t
	}

	t = "https://" + host + "/.well-known/webfinger?resource={uri}"
	body, err := c.get.Get(ctx, "https://"+host+"/.well-known/host-meta", "application/xrd+xml")
	if err != nil {
		c.logger.DebugContext(ctx, "host-meta unavailable", "host", host, "error", err)
	} else if lrdd, ok := parseHostMeta(body); ok {
		t = lrdd
	}

	c.mu.Lock()
	c.templates[host] = t
	c.mu.Unlock()
	return t
}

type xrd struct {
	XMLName xml.Name
	Links   []struct {
		Rel      string `xml:"rel,attr"`
		Template string `xml:"template,attr"`
	} `xml:"Link"`
}

// parseHostMeta extracts the first lrdd template from an XRD document.
func parseHostMeta(body []byte) (string, bool) {
	var doc xrd
	d := xml.NewDecoder(bytes.NewReader(body))
	d.Strict = true
	if err := d.Decode(&doc); err != nil {
		return "", false
	}
	if doc.XMLName.Local != "XRD" {
		return "", false
	}
	for _, l := range doc.Links {
		if l.Rel == "lrdd" && l.Template != "" {
			return l.Template, true
		}
	}
	return "", false
}
