package normalize

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// cleanAttr normalizes a raw attribute value before it participates in a
// natural key: Unicode NFC composition, NBSP and common mojibake artifacts
// collapsed to plain spaces, surrounding whitespace trimmed. Keys must be
// byte-identical across runs for surrogate ids to be stable, so every string
// that ends up in a dimension passes through here exactly once.
func cleanAttr(s string) string {
	if s == "" {
		return s
	}
	// "Â " is the classic UTF-8-read-as-Latin-1 rendering of NBSP.
	s = strings.ReplaceAll(s, "Â ", " ")
	s = strings.ReplaceAll(s, " ", " ")
	s = norm.NFC.String(s)
	return strings.TrimSpace(s)
}
