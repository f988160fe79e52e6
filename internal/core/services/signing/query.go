// Package signing builds the canonical query strings and bodies the
// registration handshake signs and transmits, and wraps the opaque
// request-signing primitive behind ports.SignatureSigner (C2).
//
// Contract for callers: the exact byte sequence fed to Sign as
// queryString and bodyHex must be the one transmitted on the wire. Any
// discrepancy (ordering, percent-encoding casing, body whitespace, field
// inclusion) invalidates the signatures and causes server-side
// rejection -- so BuildQueryString below is deterministic over an
// explicit key-order slice, never a map.
package signing

import (
	"strings"
)

// QueryParam is one ordered (key, value) pair. Order matters: the
// server verifies the signature over the exact encoded string, so the
// same logical query must always serialize identically.
type QueryParam struct {
	Key   string
	Value string
}

// BuildQueryString percent-encodes params in the given order using the
// wire dialect's rules: everything is escaped except letters, digits,
// '-', '_', '.', '~' and '*', and spaces become "%20" rather than "+". This mirrors the original Python's
// quote(v, safe='*') followed by a manual space-to-%20 pass.
func BuildQueryString(params []QueryParam) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(escapeQueryValue(p.Value))
	}
	return b.String()
}

// escapeQueryValue percent-encodes s, leaving '*' literal and encoding
// space as "%20".
func escapeQueryValue(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isUnreservedQueryByte(c) || c == '*':
			b.WriteByte(c)
		case c == ' ':
			b.WriteString("%20")
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}
	return b.String()
}

func isUnreservedQueryByte(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.' || c == '~':
		return true
	}
	return false
}
