// Package botdetect classifies inbound requests: crawler user agents, static
// asset paths, and reserved path prefixes. Every function here is pure.
package botdetect

import (
	"path"
	"strings"
)

// Matcher matches User-Agent strings against a view of the shared catalog.
// A Matcher is immutable and safe for concurrent use.
type Matcher struct {
	name       string
	version    string
	signatures []Signature
	lowered    []string
}

var (
	general = newMatcher("general", func(Signature) bool { return true })
	social  = newMatcher("social", func(s Signature) bool { return s.Preview })
)

func newMatcher(name string, keep func(Signature) bool) *Matcher {
	m := &Matcher{name: name, version: CatalogVersion}
	for _, sig := range catalog {
		if !keep(sig) {
			continue
		}
		m.signatures = append(m.signatures, sig)
		m.lowered = append(m.lowered, strings.ToLower(sig.Token))
	}
	return m
}

// General returns the matcher covering every catalog entry. The prerender
// gateway uses it.
func General() *Matcher { return general }

// Social returns the matcher restricted to link-preview agents. The preview
// synthesizer uses it.
func Social() *Matcher { return social }

// Name reports which view of the catalog this matcher was built from.
func (m *Matcher) Name() string { return m.name }

// Version reports the catalog revision the matcher was built from.
func (m *Matcher) Version() string { return m.version }

// Signatures returns a copy of the entries this matcher checks.
func (m *Matcher) Signatures() []Signature {
	return append([]Signature(nil), m.signatures...)
}

// Match returns the first signature whose token occurs in userAgent,
// ignoring case. An empty userAgent never matches.
func (m *Matcher) Match(userAgent string) (Signature, bool) {
	if userAgent == "" {
		return Signature{}, false
	}
	lowerUA := strings.ToLower(userAgent)
	for i, token := range m.lowered {
		if strings.Contains(lowerUA, token) {
			return m.signatures[i], true
		}
	}
	return Signature{}, false
}

// IsCrawler reports whether userAgent matches any signature of m.
func (m *Matcher) IsCrawler(userAgent string) bool {
	_, ok := m.Match(userAgent)
	return ok
}

// IsCrawler reports whether userAgent identifies a known crawler, bot, or
// link-preview agent.
func IsCrawler(userAgent string) bool {
	return general.IsCrawler(userAgent)
}

// IsStaticAsset reports whether p ends in a static file extension.
func IsStaticAsset(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	_, ok := staticExtensions[ext]
	return ok
}

// IsReservedPath reports whether p starts with one of prefixes.
func IsReservedPath(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// IsExempt reports whether p must bypass interception entirely: static
// assets and reserved prefixes.
func IsExempt(p string, prefixes []string) bool {
	return IsStaticAsset(p) || IsReservedPath(p, prefixes)
}
