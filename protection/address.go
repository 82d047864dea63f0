package protection

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"unicode/utf8"
)

// SentinelAddress buckets traffic whose client address could not be parsed.
// Substituting it instead of failing keeps malformed input from ever breaking
// a login request.
const SentinelAddress = "0.0.0.0"

const maxIdentifierLength = 255

// NormalizeIdentifier canonicalizes a submitted login identifier: trimmed,
// lowercased, capped at 255 characters. An empty result means identifier
// checks are skipped for the attempt.
func NormalizeIdentifier(value string) string {
	return truncateRunes(strings.ToLower(strings.TrimSpace(value)), maxIdentifierLength)
}

// truncateRunes caps a string at max characters. Slicing on a rune boundary
// keeps a multibyte character from being cut in half and persisted as invalid
// UTF-8.
func truncateRunes(value string, max int) string {
	if utf8.RuneCountInString(value) <= max {
		return value
	}
	return string([]rune(value)[:max])
}

// ClientAddress resolves the canonical client address for a request. The
// transport peer address is used unless trustForwarded is set, in which case
// the first entry of X-Forwarded-For wins when present. Whatever is resolved
// must parse as an IPv4/IPv6 literal; anything else becomes SentinelAddress.
func ClientAddress(r *http.Request, trustForwarded bool) string {
	addr := r.RemoteAddr
	// RemoteAddr normally carries a port; bare addresses are accepted too.
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}

	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			addr = strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		}
	}

	if _, err := netip.ParseAddr(addr); err != nil {
		return SentinelAddress
	}
	return addr
}
