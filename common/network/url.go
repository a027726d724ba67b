// Package network validates user-supplied upstream endpoints. Custom
// OpenAI-compatible base URLs are attacker-controlled input, so they must
// resolve to public addresses before the relay dials them.
package network

import (
	"context"
	"net"
	"net/url"
	"strings"

	"github.com/Laisky/errors/v2"
)

// ValidateEndpointURL parses rawURL, verifies scheme and host, resolves DNS,
// and rejects anything that maps to a private or local address.
func ValidateEndpointURL(ctx context.Context, rawURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil, errors.New("endpoint url is empty")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, errors.Wrap(err, "parse endpoint url")
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, errors.Errorf("unsupported url scheme: %s", parsed.Scheme)
	}
	if parsed.User != nil {
		return nil, errors.New("endpoint url must not include user info")
	}

	host := parsed.Hostname()
	if host == "" {
		return nil, errors.New("endpoint url host is empty")
	}
	if isLocalHostname(host) {
		return nil, errors.Errorf("endpoint host is not allowed: %s", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsForbiddenIP(ip) {
			return nil, errors.Errorf("endpoint host is a private or local address: %s", host)
		}
		return parsed, nil
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve endpoint host: %s", host)
	}
	if len(ips) == 0 {
		return nil, errors.Errorf("no IPs found for endpoint host: %s", host)
	}
	for _, addr := range ips {
		if IsForbiddenIP(addr.IP) {
			return nil, errors.Errorf("endpoint host resolves to a private or local address: %s", host)
		}
	}
	return parsed, nil
}

// IsForbiddenIP reports whether ip is loopback, private, link-local,
// multicast, carrier-grade NAT, or otherwise non-public.
func IsForbiddenIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsInterfaceLocalMulticast() {
		return true
	}
	return isCarrierGradeNAT(ip)
}

func isLocalHostname(host string) bool {
	lower := strings.ToLower(strings.TrimSuffix(host, "."))
	return lower == "localhost" || strings.HasSuffix(lower, ".localhost")
}

// isCarrierGradeNAT reports whether ip falls within 100.64.0.0/10.
func isCarrierGradeNAT(ip net.IP) bool {
	ipv4 := ip.To4()
	if ipv4 == nil {
		return false
	}
	return ipv4[0] == 100 && (ipv4[1]&0xC0) == 0x40
}
