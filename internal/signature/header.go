package signature

import (
	"fmt"
	"regexp"
	"strings"
)

// HeaderName is the request header carrying the credentials.
const HeaderName = "Authorization"

var authParamPattern = regexp.MustCompile(`([\w-]+)=([^,\s]+)(?:,\s*|$)`)

// Credentials is the parsed Authorization header.
type Credentials struct {
	Algorithm      Algorithm
	AccessKey      string
	Signature      string
	SignedDate     string
	IdempotencyKey string
}

// ParseAuthorization parses
//
//	algorithm=<alg>, access-key=<k>, signed-date=<ts>, signature=<hex>, idempotency-key=<id>
//
// Fields may appear in any order and unknown fields are ignored. algorithm is
// optional; the other four are required.
func ParseAuthorization(header string) (Credentials, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Credentials{}, fmt.Errorf("%w: empty header", ErrMalformedAuthorization)
	}

	params := make(map[string]string)
	for _, m := range authParamPattern.FindAllStringSubmatch(header, -1) {
		params[m[1]] = m[2]
	}

	var missing []string
	for _, field := range []string{"access-key", "signature", "signed-date", "idempotency-key"} {
		if params[field] == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return Credentials{}, fmt.Errorf("%w: missing %s", ErrMalformedAuthorization, strings.Join(missing, ", "))
	}

	alg, err := ParseAlgorithm(params["algorithm"])
	if err != nil {
		return Credentials{}, err
	}

	return Credentials{
		Algorithm:      alg,
		AccessKey:      params["access-key"],
		Signature:      params["signature"],
		SignedDate:     params["signed-date"],
		IdempotencyKey: params["idempotency-key"],
	}, nil
}

// FormatAuthorization renders credentials in the header grammar.
func FormatAuthorization(c Credentials) string {
	alg := c.Algorithm
	if alg == "" {
		alg = DefaultAlgorithm
	}
	return fmt.Sprintf("algorithm=%s, access-key=%s, signed-date=%s, signature=%s, idempotency-key=%s",
		alg, c.AccessKey, c.SignedDate, c.Signature, c.IdempotencyKey)
}
