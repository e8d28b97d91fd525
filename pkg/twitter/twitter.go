// Package twitter adapts Twitter/X API v2 user lookups and handle lists into
// profile records.
package twitter

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/codeGROOVE-dev/fediscan/pkg/profile"
)

// IsValidUsername validates a Twitter username against platform requirements.
// Twitter usernames must be 1-15 characters and contain only alphanumeric or underscore.
func IsValidUsername(username string) bool {
	if len(username) < 1 || len(username) > 15 {
		return false
	}
	for _, r := range username {
		isLower := r >= 'a' && r <= 'z'
		isUpper := r >= 'A' && r <= 'Z'
		isDigit := r >= '0' && r <= '9'
		isUnderscore := r == '_'
		if !isLower && !isUpper && !isDigit && !isUnderscore {
			return false
		}
	}
	return true
}

var (
	handlePattern     = regexp.MustCompile(`^\s*@?([A-Za-z0-9_]+)`)
	profileURLPattern = regexp.MustCompile(`(?i)(?:^|[/.\s])(?:x\.com|twitter\.com)/@?([^/?#\s]+)`)
)

// ParseHandle extracts a username from a line such as "@alice", "alice, Alice Smith"
// or "https://x.com/alice". It returns ErrBadHandle when none is found.
func ParseHandle(line string) (string, error) {
	if m := profileURLPattern.FindStringSubmatch(line); m != nil {
		if IsValidUsername(m[1]) {
			return m[1], nil
		}
		return "", fmt.Errorf("%q: %w", line, profile.ErrBadHandle)
	}
	m := handlePattern.FindStringSubmatch(line)
	if m == nil || !IsValidUsername(m[1]) {
		return "", fmt.Errorf("%q: %w", line, profile.ErrBadHandle)
	}
	return m[1], nil
}

// Handle is a requested username and where it came from.
type Handle struct {
	Username string `json:"username"`
	Origin   string `json:"origin"` // file name, "stdin", or a list name
	Line     int    `json:"line"`
	Text     string `json:"text"` // the raw line
}

// ParseHandles reads one handle per line. Blank lines are skipped; lines that
// hold no valid handle are returned in invalid with an empty Username.
func ParseHandles(r io.Reader, origin string) (handles, invalid []Handle, err error) {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		h := Handle{Origin: origin, Line: line, Text: text}
		name, err := ParseHandle(text)
		if err != nil {
			invalid = append(invalid, h)
			continue
		}
		h.Username = name
		handles = append(handles, h)
	}
	if err := sc.Err(); err != nil {
		return handles, invalid, fmt.Errorf("read %s: %w", origin, err)
	}
	return handles, invalid, nil
}

type urlEntity struct {
	URL         string `json:"url"`
	ExpandedURL string `json:"expanded_url"`
}

type urlEntities struct {
	URLs []urlEntity `json:"urls"`
}

type user struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Username      string `json:"username"`
	Description   string `json:"description"`
	Location      string `json:"location"`
	PinnedTweetID string `json:"pinned_tweet_id"`
	Entities      struct {
		URL         urlEntities `json:"url"`
		Description urlEntities `json:"description"`
		Location    urlEntities `json:"location"`
	} `json:"entities"`
}

type tweet struct {
	ID       string      `json:"id"`
	Text     string      `json:"text"`
	Entities urlEntities `json:"entities"`
}

type apiError struct {
	Value  string `json:"value"`
	Detail string `json:"detail"`
	Title  string `json:"title"`
}

type response struct {
	Data     json.RawMessage `json:"data"`
	Includes struct {
		Tweets []tweet `json:"tweets"`
	} `json:"includes"`
	Errors []apiError `json:"errors"`
	Meta   struct {
		NextToken string `json:"next_token"`
	} `json:"meta"`
}

// Response is a decoded users lookup.
type Response struct {
	Records    []*profile.Record
	Unresolved []string // usernames or IDs the API reported errors for
	NextToken  string   // pagination token, empty on the last page
	Problems   []error  // non-fatal inconsistencies, e.g. missing pinned tweets
}

// Decoder reads users responses.
type Decoder struct {
	logger *slog.Logger
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Decoder) { d.logger = logger }
}

// NewDecoder creates a Decoder.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode reads one API v2 users response. "data" may be a single user or an
// array; pinned tweets are joined from "includes.tweets". It returns
// profile.ErrNoUsers if the document holds neither users nor errors.
func (d *Decoder) Decode(r io.Reader) (*Response, error) {
	var raw response
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode users response: %w", err)
	}

	users, err := decodeUsers(raw.Data)
	if err != nil {
		return nil, err
	}

	out := &Response{NextToken: raw.Meta.NextToken}
	for _, e := range raw.Errors {
		d.logger.Debug("user not resolved", "value", e.Value, "detail", e.Detail)
		out.Unresolved = append(out.Unresolved, e.Value)
	}
	if len(users) == 0 && len(out.Unresolved) == 0 {
		return nil, profile.ErrNoUsers
	}

	tweets := make(map[string]*tweet, len(raw.Includes.Tweets))
	for i := range raw.Includes.Tweets {
		tweets[raw.Includes.Tweets[i].ID] = &raw.Includes.Tweets[i]
	}

	for i := range users {
		u := &users[i]
		rec := &profile.Record{
			ID:       u.ID,
			Handle:   u.Username,
			Name:     u.Name,
			Bio:      u.Description,
			Location: u.Location,
		}
		for _, ents := range []urlEntities{u.Entities.URL, u.Entities.Description, u.Entities.Location} {
			rec.Links = append(rec.Links, links(ents)...)
		}
		if u.PinnedTweetID != "" {
			t, ok := tweets[u.PinnedTweetID]
			if !ok {
				out.Problems = append(out.Problems, fmt.Errorf("user %s pinned tweet %s: %w", u.ID, u.PinnedTweetID, profile.ErrUnknownRef))
				d.logger.Debug("pinned tweet missing from includes", "user", u.Username, "tweet", u.PinnedTweetID)
			} else {
				rec.Pinned = &profile.Post{ID: t.ID, Text: t.Text, Links: links(t.Entities)}
			}
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

// Decode reads one users response with the default decoder.
func Decode(r io.Reader) (*Response, error) {
	return NewDecoder().Decode(r)
}

func decodeUsers(data json.RawMessage) ([]user, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '[' {
		var users []user
		if err := json.Unmarshal(data, &users); err != nil {
			return nil, fmt.Errorf("decode users: %w", err)
		}
		return users, nil
	}
	var u user
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return []user{u}, nil
}

func links(ents urlEntities) []profile.Link {
	var out []profile.Link
	for _, e := range ents.URLs {
		if e.URL == "" && e.ExpandedURL == "" {
			continue
		}
		out = append(out, profile.Link{URL: e.URL, Expanded: e.ExpandedURL})
	}
	return out
}

// ErrTruncated is returned by DecodeAll when the stream ends mid-document.
var ErrTruncated = errors.New("truncated users stream")

// DecodeAll reads consecutive responses, e.g. a file of saved pages, and
// concatenates them. The last page's NextToken is kept.
func (d *Decoder) DecodeAll(r io.Reader) (*Response, error) {
	dec := json.NewDecoder(r)
	all := &Response{}
	pages := 0
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		if err != nil {
			return nil, fmt.Errorf("decode page %d: %w", pages+1, err)
		}
		page, err := d.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pages+1, err)
		}
		pages++
		all.Records = append(all.Records, page.Records...)
		all.Unresolved = append(all.Unresolved, page.Unresolved...)
		all.Problems = append(all.Problems, page.Problems...)
		all.NextToken = page.NextToken
	}
	if pages == 0 {
		return nil, profile.ErrNoUsers
	}
	d.logger.Debug("decoded users stream", "pages", pages, "records", len(all.Records))
	return all, nil
}
