package domains

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var hostnamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)

// Normalize lowercases a domain and strips any scheme, path, port and trailing dot.
// Example: "HTTPS://Example.com:443/ads.txt" -> "example.com"
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	// Handle protocol-relative and bare hosts by giving url.Parse a scheme
	if strings.HasPrefix(s, "//") {
		s = "https:" + s
	} else if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	parsed, err := url.Parse(s)
	if err != nil {
		return ""
	}

	host := strings.ToLower(parsed.Hostname())
	return strings.TrimSuffix(host, ".")
}

// IsValid reports whether domain is a syntactically valid hostname under a known public suffix
func IsValid(domain string) bool {
	if domain == "" || len(domain) > 253 {
		return false
	}
	if !hostnamePattern.MatchString(domain) {
		return false
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(domain); err != nil {
		return false
	}
	return true
}

// RootDomain returns the registrable domain (eTLD+1).
// Example: blog.example.co.uk -> example.co.uk
func RootDomain(domain string) string {
	root, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err == nil {
		return root
	}

	parts := strings.Split(domain, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "." + parts[len(parts)-1]
	}
	return domain
}

// SortedSet normalizes, validates and de-duplicates domains, dropping any in exclude.
// The result is sorted so evaluation order is reproducible.
func SortedSet(raw []string, exclude ...string) []string {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		if n := Normalize(e); n != "" {
			skip[n] = true
		}
	}

	seen := make(map[string]bool)
	var out []string
	for _, r := range raw {
		d := Normalize(r)
		if d == "" || skip[d] || seen[d] || !IsValid(d) {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}

	sort.Strings(out)
	return out
}
