package catalog

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// WithApexDomains appends the registrable domain (eTLD+1) of each entry when
// it is not already listed, so "music.youtube.com" also denies "youtube.com".
func WithApexDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	out = append(out, domains...)

	for _, domain := range domains {
		domain = strings.TrimSuffix(domain, ".")
		apex, err := publicsuffix.EffectiveTLDPlusOne(domain)
		if err != nil {
			// the domain is itself a public suffix
			continue
		}
		out = append(out, apex)
	}
	return dedupe(out)
}
