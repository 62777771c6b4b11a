package internal

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// RegistrableDomain returns the eTLD+1 of a URL or bare host name, for
// example "blog.example.co.uk" becomes "example.co.uk". Hosts that have no
// registrable part, such as "localhost" or IP addresses, are returned
// lowercased as they are.
func RegistrableDomain(rawURL string) string {
	host := strings.TrimSpace(rawURL)
	if host == "" {
		return ""
	}
	if strings.Contains(host, "://") {
		u, err := url.Parse(host)
		if err != nil {
			return ""
		}
		host = u.Hostname()
	} else if i := strings.IndexAny(host, "/:"); i >= 0 {
		host = host[:i]
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	host = strings.TrimPrefix(host, "www.")
	if host == "" || net.ParseIP(host) != nil {
		return host
	}

	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}
