// Package signature implements the HMAC request-signing scheme used by API
// clients and verified by the gateway.
//
// A request is reduced to a six-line signing string:
//
//	METHOD
//	PATH
//	CANONICAL_QUERY
//	IDEMPOTENCY_KEY
//	BODY_FIELD
//	SIGNED_DATE
//
// Lines are joined with a single "\n" and there is no trailing newline. Any
// absent field is the empty string, so a GET with no query and no body has two
// empty lines in the middle.
//
// CANONICAL_QUERY is the percent-decoded query with parameters sorted by key
// (last value wins on duplicates). Decoding resolves "%XX" escapes only, so '+'
// stays a literal plus. BODY_FIELD is by default the lowercase hex SHA-256 of
// the canonical body, where JSON bodies are re-encoded without whitespace and
// object keys keep the order the client sent them in.
//
// The signature is the lowercase hex HMAC of the signing string under the
// credential's secret. It travels in the Authorization header:
//
//	Authorization: algorithm=HmacSHA256, access-key=ak, signed-date=2024-01-15T10:30:00+09:00,
//	    signature=38f3..., idempotency-key=550e8400-e29b-41d4-a716-446655440000
//
// Verification recomputes the signature and compares in constant time. Every
// internal failure yields "invalid"; nothing in this package fails open.
package signature
