// Package instance describes fediverse servers: metadata, nodeinfo probing, and
// per-instance reporting over extraction results.
package instance

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Instance is what is known about one server. Nil pointers mean unknown.
//
//nolint:govet // fieldalignment: grouped by meaning
type Instance struct {
	Host        string `json:"host"`
	LocalDomain string `json:"local_domain,omitempty"` // WebFinger domain, if different from Host

	Software          string `json:"software,omitempty"` // lowercase, e.g. "mastodon"
	SoftwareVersion   string `json:"software_version,omitempty"`
	RegistrationsOpen *bool  `json:"registrations_open,omitempty"`

	Users          *int64 `json:"users,omitempty"`
	ActiveMonth    *int64 `json:"active_month,omitempty"`
	ActiveHalfyear *int64 `json:"active_halfyear,omitempty"`
	LocalPosts     *int64 `json:"local_posts,omitempty"`

	Uptime     *float64  `json:"uptime,omitempty"` // 0..1
	Dead       bool      `json:"dead,omitempty"`
	Up         bool      `json:"up,omitempty"`
	LastUpdate time.Time `json:"last_update,omitzero"`
}

// Naked returns an instance with nothing known but its host.
func Naked(host string) *Instance {
	return &Instance{Host: strings.ToLower(host)}
}

func (i *Instance) String() string {
	return i.Host
}

// Domain returns the domain that serves WebFinger for this instance.
func (i *Instance) Domain() string {
	if i.LocalDomain != "" {
		return i.LocalDomain
	}
	return i.Host
}

// WebFingerURL is the well-known WebFinger endpoint of the instance.
func (i *Instance) WebFingerURL() string {
	return "https://" + i.Domain() + "/.well-known/webfinger"
}

// UptimeString formats the uptime with more precision the closer it is to 100%.
func (i *Instance) UptimeString() string {
	if i.Uptime == nil {
		return ""
	}
	u := *i.Uptime
	switch {
	case u == 1:
		return "100 %"
	case u >= 0.9998:
		return fmt.Sprintf("%.3f %%", u*100)
	case u >= 0.998:
		return fmt.Sprintf("%.2f %%", u*100)
	case u >= 0.98:
		return fmt.Sprintf("%.1f %%", u*100)
	default:
		return fmt.Sprintf("%.0f %%", u*100)
	}
}

// Stats summarizes user counts, e.g. "users: 120 (last month: 30; last 6 months: 50)".
// It is empty when the user count is unknown.
func (i *Instance) Stats() string {
	if i.Users == nil {
		return ""
	}
	s := "users: " + strconv.FormatInt(*i.Users, 10)
	var extra []string
	if i.ActiveMonth != nil {
		extra = append(extra, "last month: "+strconv.FormatInt(*i.ActiveMonth, 10))
	}
	if i.ActiveHalfyear != nil {
		extra = append(extra, "last 6 months: "+strconv.FormatInt(*i.ActiveHalfyear, 10))
	}
	if len(extra) > 0 {
		s += " (" + strings.Join(extra, "; ") + ")"
	}
	return s
}

var icons = map[string]string{
	"aardwolf": "aardwolf.png", "bonfire": "bonfire.png", "bookwyrm": "bookwyrm.png", "calckey": "calckey.png",
	"castopod": "castopod.svg", "diaspora": "diaspora.svg", "dokieli": "dokieli.png", "drupal": "drupal.svg",
	"epicyon": "epicyon.png", "forgefriends": "forgefriends.svg", "friendica": "friendica.svg", "funkwhale": "funkwhale.svg",
	"gancio": "gancio.png", "gnusocial": "gnusocial.svg", "gotosocial": "gotosocial.png", "guppe": "guppe.png",
	"kbin": "kbin.png", "ktistec": "ktistec.png", "lemmy": "lemmy.svg", "mastodon": "mastodon.svg",
	"minipub": "minipub.svg", "misskey": "misskey.png", "misty": "misty.png", "mobilizon": "mobilizon.svg",
	"nextcloud": "nextcloud.png", "ocelot": "ocelot.svg", "osada": "osada.png", "owncast": "owncast.svg",
	"peertube": "peertube.svg", "pixelfed": "pixelfed.svg", "pleroma": "pleroma.svg", "plume": "plume.svg",
	"readas": "readas.svg", "redmatrix": "redmatrix.png", "roadhouse": "roadhouse.png", "socialhome": "socialhome.svg",
	"wordpress": "wordpress.svg", "writefreely": "writefreely.svg", "zap": "zap.png",
}

// Icon returns the logo file name for the instance software, or "".
func (i *Instance) Icon() string {
	return icons[i.Software]
}

// softwareKey orders mastodon first and unknown software last.
func (i *Instance) softwareKey() string {
	switch i.Software {
	case "mastodon":
		return ""
	case "":
		return "~"
	default:
		return i.Software
	}
}

// Apply copies probe results onto the instance and marks it alive.
func (i *Instance) Apply(info *Info, now time.Time) {
	i.Software = strings.ToLower(info.Software)
	i.SoftwareVersion = info.SoftwareVersion
	i.RegistrationsOpen = info.RegistrationsOpen
	i.Users = info.Users
	i.ActiveMonth = info.ActiveMonth
	i.ActiveHalfyear = info.ActiveHalfyear
	i.LocalPosts = info.LocalPosts
	i.Dead = false
	i.Up = true
	i.LastUpdate = now
}
