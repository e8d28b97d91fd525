// Package profile defines the source-network records that identities are extracted from.
package profile

import "errors"

// Common errors returned by adapters that produce records.
var (
	ErrNoUsers    = errors.New("no users in response")
	ErrBadHandle  = errors.New("invalid handle")
	ErrUnknownRef = errors.New("unknown pinned post reference")
)

// Link is a URL annotation attached to a bio, website or location field.
type Link struct {
	URL      string `json:"url,omitempty"`      // shortened or raw URL as it appears
	Expanded string `json:"expanded,omitempty"` // expanded form, if the platform supplied one
}

// Canonical returns the expanded URL if present, else the raw URL.
func (l Link) Canonical() string {
	if l.Expanded != "" {
		return l.Expanded
	}
	return l.URL
}

// Post is a pinned post.
type Post struct {
	ID    string `json:"id,omitempty"`
	Text  string `json:"text,omitempty"`
	Links []Link `json:"links,omitempty"`
}

// Record is one account on the source network. Empty strings mean absent.
type Record struct {
	ID       string `json:"id"`                 // stable source-network user ID
	Handle   string `json:"handle,omitempty"`   // screen name, without @
	Name     string `json:"name,omitempty"`     // display name
	Bio      string `json:"bio,omitempty"`      // description
	Location string `json:"location,omitempty"` // free-text location
	Links    []Link `json:"links,omitempty"`    // bio, website and location annotations
	Pinned   *Post  `json:"pinned,omitempty"`   // pinned post, if any
}

// Texts returns the free-text fields that are scanned for identities, in scan order.
func (r *Record) Texts() []string {
	texts := []string{r.Name, r.Location, r.Bio}
	if r.Pinned != nil {
		texts = append(texts, r.Pinned.Text)
	}
	return texts
}

// URLs returns the canonical form of every link on the record and its pinned post.
func (r *Record) URLs() []string {
	var urls []string
	for _, l := range r.Links {
		if u := l.Canonical(); u != "" {
			urls = append(urls, u)
		}
	}
	if r.Pinned != nil {
		for _, l := range r.Pinned.Links {
			if u := l.Canonical(); u != "" {
				urls = append(urls, u)
			}
		}
	}
	return urls
}
