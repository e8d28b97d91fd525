package hostcheck

import "strings"

// forbiddenHosts are platforms and mail providers whose addresses look like
// identities but never are. Subdomains are forbidden too.
var forbiddenHosts = map[string]bool{
	// Large non-federated platforms.
	"twitter.com": true, "x.com": true, "tiktok.com": true, "youtube.com": true,
	"medium.com": true, "facebook.com": true, "instagram.com": true, "linkedin.com": true,
	"skeb.jp": true, "pronouns.page": true, "foundation.app": true, "gamejolt.com": true,
	"traewelling.de": true, "observablehq.com": true, "manylink.co": true, "withkoji.com": true,
	"nomadlist.com": true, "figma.com": true, "peakd.com": true, "jabber.ccc.de": true,
	// News sites that show up in "writer at" bios.
	"vice.com": true, "wsj.com": true, "theguardian.com": true, "cbsnews.com": true,
	"cnn.com": true, "welt.de": true, "nytimes.com": true,
	// Mail providers.
	"gmail.com": true, "googlemail.com": true, "google.com": true,
	"yahoo.com": true, "yahoo.co.uk": true, "ymail.com": true,
	"hotmail.com": true, "outlook.com": true, "live.com": true, "msn.com": true,
	"icloud.com": true, "me.com": true, "mac.com": true,
	"aol.com": true, "protonmail.com": true, "proton.me": true, "pm.me": true,
	"fastmail.com": true, "fastmail.fm": true, "hey.com": true,
	"gmx.de": true, "web.de": true, "posteo.de": true, "arcor.de": true, "bell.net": true,
}

// keywords are host labels that suggest a fediverse instance.
var keywords = []string{"social", "masto", "mastodon"}

// IsForbidden returns true if host, or any parent domain of it, is denylisted.
func IsForbidden(host string) bool {
	labels := strings.Split(strings.ToLower(host), ".")
	for i := range labels {
		if forbiddenHosts[strings.Join(labels[i:], ".")] {
			return true
		}
	}
	return false
}

// MatchesKeyword returns true if any dot-separated label of host is a keyword.
// A miss is not evidence against the host.
func MatchesKeyword(host string) bool {
	for label := range strings.SplitSeq(strings.ToLower(host), ".") {
		for _, kw := range keywords {
			if label == kw {
				return true
			}
		}
	}
	return false
}
