package signature

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"
)

// Algorithm names an HMAC variant using the names clients put on the wire.
type Algorithm string

const (
	HmacSHA256 Algorithm = "HmacSHA256"
	HmacSHA384 Algorithm = "HmacSHA384"
	HmacSHA512 Algorithm = "HmacSHA512"

	// Legacy algorithms are understood but only accepted when explicitly enabled.
	HmacSHA1 Algorithm = "HmacSHA1"
	HmacMD5  Algorithm = "HmacMD5"
)

// DefaultAlgorithm applies when the header carries no algorithm field.
const DefaultAlgorithm = HmacSHA256

var algorithms = map[string]Algorithm{
	"hmacsha256": HmacSHA256,
	"hmacsha384": HmacSHA384,
	"hmacsha512": HmacSHA512,
	"hmacsha1":   HmacSHA1,
	"hmacmd5":    HmacMD5,
}

// ParseAlgorithm resolves an algorithm name case-insensitively. The empty
// string yields DefaultAlgorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultAlgorithm, nil
	}
	alg, ok := algorithms[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
	return alg, nil
}

// IsLegacy reports whether the algorithm is weak and off by default.
func (a Algorithm) IsLegacy() bool {
	return a == HmacSHA1 || a == HmacMD5
}

func (a Algorithm) String() string {
	return string(a)
}

func (a Algorithm) hashFunc() (func() hash.Hash, error) {
	switch a {
	case HmacSHA256:
		return sha256.New, nil
	case HmacSHA384:
		return sha512.New384, nil
	case HmacSHA512:
		return sha512.New, nil
	case HmacSHA1:
		return sha1.New, nil
	case HmacMD5:
		return md5.New, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, string(a))
	}
}
