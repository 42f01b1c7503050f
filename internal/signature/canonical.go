package signature

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// CanonicalizeQuery sorts the raw query string's parameters by key.
// Segments are split on '&' and then on the first '='; a segment without '='
// becomes "key=". When a key repeats the last value wins. Empty segments are
// dropped and nothing is percent-decoded.
func CanonicalizeQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	params := make(map[string]string)
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		params[key] = value
	}
	if len(params) == 0 {
		return ""
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// DecodeQuery percent-decodes a raw query the way a URI decoder does: "%XX"
// escapes are resolved and '+' is left alone. An undecodable query is
// returned unchanged.
func DecodeQuery(rawQuery string) string {
	decoded, err := url.PathUnescape(rawQuery)
	if err != nil {
		return rawQuery
	}
	return decoded
}

// CanonicalizeBody re-encodes a JSON object or array compactly, keeping object
// keys in the order they arrived and numbers as written. Bodies that are not a
// single well-formed JSON value starting with '{' or '[' are returned
// unchanged.
func CanonicalizeBody(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return body
	}
	if !json.Valid(trimmed) {
		return body
	}

	out, err := compactJSON(trimmed)
	if err != nil {
		return body
	}
	return out
}

// container tracks one open object or array while re-encoding.
type container struct {
	object bool
	n      int
}

// compactJSON writes the token stream of a valid JSON document back without
// whitespace. Object members keep their original order.
func compactJSON(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var buf bytes.Buffer
	var stack []container
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if delim, ok := tok.(json.Delim); ok && (delim == '}' || delim == ']') {
			stack = stack[:len(stack)-1]
			buf.WriteByte(byte(delim))
			continue
		}

		if len(stack) > 0 {
			top := &stack[len(stack)-1]
			switch {
			case top.object && top.n%2 == 1:
				buf.WriteByte(':')
			case top.n > 0:
				buf.WriteByte(',')
			}
			top.n++
		}

		switch v := tok.(type) {
		case json.Delim:
			buf.WriteByte(byte(v))
			stack = append(stack, container{object: v == '{'})
		case string:
			if err := writeString(&buf, v); err != nil {
				return nil, err
			}
		case json.Number:
			buf.WriteString(v.String())
		case bool:
			buf.WriteString(strconv.FormatBool(v))
		case nil:
			buf.WriteString("null")
		}
	}
	return buf.Bytes(), nil
}

func writeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

// BodyDigest returns the lowercase hex SHA-256 of the canonical body, or ""
// for an empty body.
func BodyDigest(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	sum := sha256.Sum256(CanonicalizeBody(body))
	return hex.EncodeToString(sum[:])
}
