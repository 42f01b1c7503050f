package signature

import (
	"crypto/subtle"
	"strings"
)

// ConstantTimeEquals compares two hex strings case-insensitively. Strings of
// equal length are compared over every byte; unequal lengths return false.
func ConstantTimeEquals(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
