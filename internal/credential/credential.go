// Package credential resolves access keys to credentials through a
// cache-aside store in front of an origin (the API key service or its database).
package credential

import (
	"net/netip"
	"strings"

	"github.com/samber/lo"
)

// Status is the lifecycle state of a credential.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusExpired   Status = "EXPIRED"
	StatusRevoked   Status = "REVOKED"
)

// Credential is an access key with its shared secret.
type Credential struct {
	ID        int64  `json:"id"`
	ClientID  string `json:"clientId"`
	AccessKey string `json:"accessKey" validate:"required,max=64"`
	Secret    string `json:"-" validate:"required"`
	Status    Status `json:"status" validate:"required,oneof=ACTIVE SUSPENDED EXPIRED REVOKED"`
	// AllowedIPs restricts client addresses. Empty means any address; "*"
	// anywhere in an entry also means any address.
	AllowedIPs []string `json:"allowedIps,omitempty"`
}

// IsActive reports whether the credential may authenticate requests.
func (c *Credential) IsActive() bool {
	return c.Status == StatusActive
}

// AllowsIP reports whether clientIP is on the allow-list. Entries are literal
// addresses compared after normalization; ranges are not expanded, so
// "10.0.0.0/8" only matches that exact string.
func (c *Credential) AllowsIP(clientIP string) bool {
	if len(c.AllowedIPs) == 0 {
		return true
	}
	if lo.ContainsBy(c.AllowedIPs, func(entry string) bool { return strings.Contains(entry, "*") }) {
		return true
	}

	ip := NormalizeIP(clientIP)
	return lo.ContainsBy(c.AllowedIPs, func(entry string) bool {
		return strings.EqualFold(NormalizeIP(strings.TrimSpace(entry)), ip)
	})
}

// ParseAllowedIPs splits the comma-separated form used by the API key service.
func ParseAllowedIPs(s string) []string {
	entries := lo.Map(strings.Split(s, ","), func(e string, _ int) string {
		return strings.TrimSpace(e)
	})
	return lo.Compact(entries)
}

// NormalizeIP canonicalizes an address for comparison. IPv6 loopback becomes
// 127.0.0.1, IPv4-mapped IPv6 becomes plain IPv4 and other IPv6 addresses take
// their compressed lowercase form. Unparseable input is trimmed and lowercased.
func NormalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	ip = strings.TrimSuffix(strings.TrimPrefix(ip, "["), "]")
	if ip == "" {
		return ""
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return strings.ToLower(ip)
	}
	addr = addr.Unmap()
	if addr.Is6() && addr.IsLoopback() {
		return "127.0.0.1"
	}
	return addr.String()
}
