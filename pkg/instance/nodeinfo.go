package instance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/codeGROOVE-dev/fediscan/pkg/metrics"
)

// ErrNotFediverse is returned when a host serves no nodeinfo document that speaks ActivityPub.
var ErrNotFediverse = errors.New("not a fediverse instance")

// Getter fetches a URL. *httpcache.Fetcher implements it.
type Getter interface {
	Get(ctx context.Context, rawURL, accept string) ([]byte, error)
}

// Info is the subset of a nodeinfo document fediscan stores.
type Info struct {
	Software          string
	SoftwareVersion   string
	RegistrationsOpen *bool
	Users             *int64
	ActiveMonth       *int64
	ActiveHalfyear    *int64
	LocalPosts        *int64
}

// Prober reads nodeinfo from hosts.
type Prober struct {
	get      Getter
	logger   *slog.Logger
	maxTries int
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ProberOption {
	return func(p *Prober) { p.logger = logger }
}

// WithMaxTries bounds how many nodeinfo links are followed per host.
func WithMaxTries(n int) ProberOption {
	return func(p *Prober) { p.maxTries = n }
}

// NewProber creates a Prober.
func NewProber(get Getter, opts ...ProberOption) *Prober {
	p := &Prober{get: get, logger: slog.Default(), maxTries: 5}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe fetches /.well-known/nodeinfo from host and follows its links until one
// describes an ActivityPub server. It returns ErrNotFediverse if none does.
func (p *Prober) Probe(ctx context.Context, host string) (*Info, error) {
	info, err := p.probe(ctx, host)
	switch {
	case err == nil:
		metrics.InstanceProbes.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrNotFediverse):
		metrics.InstanceProbes.WithLabelValues("not_fediverse").Inc()
	default:
		metrics.InstanceProbes.WithLabelValues("error").Inc()
	}
	return info, err
}

func (p *Prober) probe(ctx context.Context, host string) (*Info, error) {
	body, err := p.get.Get(ctx, "https://"+host+"/.well-known/nodeinfo", "application/json")
	if err != nil {
		return nil, fmt.Errorf("fetch nodeinfo index: %w", err)
	}

	var index struct {
		Links []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := json.Unmarshal(body, &index); err != nil {
		return nil, fmt.Errorf("parse nodeinfo index: %w", err)
	}

	tries := 0
	var lastErr error
	for _, link := range index.Links {
		if link.Href == "" {
			continue
		}
		if tries >= p.maxTries {
			p.logger.DebugContext(ctx, "nodeinfo tries exceeded", "host", host)
			break
		}
		tries++

		doc, err := p.get.Get(ctx, link.Href, "application/json")
		if err != nil {
			lastErr = err
			p.logger.DebugContext(ctx, "nodeinfo fetch failed", "host", host, "url", link.Href, "error", err)
			continue
		}
		info, ok, err := ParseNodeinfo(doc)
		if err != nil {
			lastErr = err
			p.logger.DebugContext(ctx, "nodeinfo parse failed", "host", host, "url", link.Href, "error", err)
			continue
		}
		if ok {
			return info, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotFediverse, host, lastErr)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFediverse, host)
}

type nodeinfo struct {
	Software struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"software"`
	Protocols         json.RawMessage `json:"protocols"`
	OpenRegistrations flexBool        `json:"openRegistrations"`
	Usage             struct {
		Users struct {
			Total          flexInt `json:"total"`
			ActiveMonth    flexInt `json:"activeMonth"`
			ActiveHalfyear flexInt `json:"activeHalfyear"`
		} `json:"users"`
		LocalPosts flexInt `json:"localPosts"`
	} `json:"usage"`
}

// ParseNodeinfo decodes a nodeinfo document. ok is false if the server does not
// list activitypub among its protocols.
func ParseNodeinfo(doc []byte) (info *Info, ok bool, err error) {
	var n nodeinfo
	if err := json.Unmarshal(doc, &n); err != nil {
		return nil, false, fmt.Errorf("decode nodeinfo: %w", err)
	}
	if !slices.Contains(protocols(n.Protocols), "activitypub") {
		return nil, false, nil
	}
	return &Info{
		Software:          strings.ToLower(n.Software.Name),
		SoftwareVersion:   n.Software.Version,
		RegistrationsOpen: n.OpenRegistrations.v,
		Users:             n.Usage.Users.Total.v,
		ActiveMonth:       n.Usage.Users.ActiveMonth.v,
		ActiveHalfyear:    n.Usage.Users.ActiveHalfyear.v,
		LocalPosts:        n.Usage.LocalPosts.v,
	}, true, nil
}

// protocols accepts the 2.x list form and the 1.x {"inbound":[],"outbound":[]} form.
func protocols(raw json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var dirs map[string][]string
	if err := json.Unmarshal(raw, &dirs); err == nil {
		var out []string
		for _, ps := range dirs {
			out = append(out, ps...)
		}
		return out
	}
	return nil
}

// flexInt decodes numbers and numeric strings; anything else is unknown.
type flexInt struct{ v *int64 }

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.v = &n
		return nil
	}
	if x, err := strconv.ParseFloat(s, 64); err == nil {
		n := int64(x)
		f.v = &n
	}
	return nil
}

// flexBool decodes booleans, 0/1 and their string forms; anything else is unknown.
type flexBool struct{ v *bool }

func (f *flexBool) UnmarshalJSON(b []byte) error {
	var t bool
	switch string(bytes.Trim(b, `"`)) {
	case "true", "True", "1":
		t = true
	case "false", "False", "0":
		t = false
	default:
		return nil
	}
	f.v = &t
	return nil
}
