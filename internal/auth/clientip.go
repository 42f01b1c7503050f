package auth

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/samber/lo"
)

// DefaultTrustedProxies covers loopback and private networks, where load
// balancers in front of the gateway normally live.
const DefaultTrustedProxies = "127.0.0.0/8,::1/128,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,fc00::/7"

// clientIPHeaders are consulted in order; list-valued headers contribute
// their first entry.
var clientIPHeaders = []struct {
	name string
	list bool
}{
	{"X-Forwarded-For", true},
	{"X-Real-IP", false},
	{"X-Original-Forwarded-For", true},
	{"X-Client-IP", false},
	{"CF-Connecting-IP", false},
}

// TrustedProxies are the peers whose forwarding headers are believed.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies reads addresses and CIDR prefixes. "*" trusts every
// peer.
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	var proxies TrustedProxies
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		switch {
		case entry == "":
			continue
		case entry == "*":
			return TrustedProxies{netip.MustParsePrefix("0.0.0.0/0"), netip.MustParsePrefix("::/0")}, nil
		case strings.Contains(entry, "/"):
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			proxies = append(proxies, prefix.Masked())
		default:
			addr, err := netip.ParseAddr(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			addr = addr.Unmap()
			proxies = append(proxies, netip.PrefixFrom(addr, addr.BitLen()))
		}
	}
	return proxies, nil
}

// Contains reports whether ip falls inside any trusted prefix.
func (t TrustedProxies) Contains(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap().WithZone("")
	return lo.ContainsBy(t, func(p netip.Prefix) bool { return p.Contains(addr) })
}

// ClientIP returns the caller's address. Forwarding headers are only read when
// the connection comes from a trusted proxy; otherwise the remote address is
// used as is. Header values that are empty, "unknown" or loopback are skipped.
func ClientIP(r *http.Request, trusted TrustedProxies) string {
	peer := remoteHost(r)

	if trusted.Contains(peer) {
		for _, h := range clientIPHeaders {
			value := strings.TrimSpace(r.Header.Get(h.name))
			if !usableHeaderIP(value) {
				continue
			}
			if h.list {
				first, _, _ := strings.Cut(value, ",")
				return strings.TrimSpace(first)
			}
			return value
		}
	}

	if peer != "" {
		return peer
	}
	return "unknown"
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func usableHeaderIP(value string) bool {
	switch strings.ToLower(value) {
	case "", "unknown", "127.0.0.1", "::1", "0:0:0:0:0:0:0:1":
		return false
	}
	return true
}
