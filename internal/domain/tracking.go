// Tracking identifiers for unauthenticated customer access. Customers never
// see internal appointment IDs; they hold either the short human-readable
// tracking code printed in emails or the opaque tracking token embedded in
// links.
package domain

import (
	"crypto/rand"
	"encoding/base64"
	"regexp"
	"strings"
)

// trackingTokenRE matches the only accepted token shape: exactly 32 URL-safe
// base64 characters. Anything else is rejected before any lookup.
var trackingTokenRE = regexp.MustCompile(`^[a-zA-Z0-9_-]{32}$`)

// trackingCodeRE matches short tracking codes such as "GL-7K2M9QXD".
var trackingCodeRE = regexp.MustCompile(`^GL-[A-Z0-9]{8}$`)

// codeAlphabet excludes easily confused characters (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// NewTrackingToken returns a fresh 32-character URL-safe token backed by
// 24 bytes of crypto/rand entropy.
func NewTrackingToken() string {
	var buf [24]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms; if it does,
		// refusing to mint tokens is the only safe option.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf[:])
}

// NewTrackingCode returns a fresh short tracking code ("GL-" + 8 chars).
// Codes are not secrets; uniqueness is enforced by the database index and
// callers retry on collision.
func NewTrackingCode() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}
	var b strings.Builder
	b.WriteString("GL-")
	for _, c := range buf {
		b.WriteByte(codeAlphabet[int(c)%len(codeAlphabet)])
	}
	return b.String()
}

// ValidTrackingToken reports whether s has the exact token shape.
func ValidTrackingToken(s string) bool { return trackingTokenRE.MatchString(s) }

// ValidTrackingCode reports whether s has the short-code shape.
func ValidTrackingCode(s string) bool { return trackingCodeRE.MatchString(strings.ToUpper(s)) }
