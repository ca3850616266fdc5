package proxy

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
)

// Hostnames that always resolve to the proxy's own network namespace.
var localHostnames = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
	"0.0.0.0":   true,
}

// ValidateUpstream rejects upstream targets that would let a client reach
// the proxy's private network. The returned error message is the reason
// surfaced in the 403 body. When allowLocalNet is set, all private-network
// checks are skipped. DNS failures are not treated as violations; the
// upstream fetch fails on its own.
func ValidateUpstream(ctx context.Context, rawURL string, allowLocalNet bool) error {
	if rawURL == "" {
		return errors.New("Invalid upstream URL")
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return errors.New("Invalid upstream URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("Only http and https upstreams are allowed")
	}

	if allowLocalNet {
		return nil
	}

	host := strings.ToLower(u.Hostname())
	if localHostnames[host] {
		return errors.New("Localhost access denied")
	}

	if ip := net.ParseIP(host); ip != nil {
		if isPrivate(ip) {
			return errors.New("Private network access denied")
		}
		return nil
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		if isPrivate(ip) {
			return errors.New("Private network access denied")
		}
	}
	return nil
}

// isPrivate covers 10/8, 172.16/12, 192.168/16, 127/8 and the unspecified
// address.
func isPrivate(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified()
}
