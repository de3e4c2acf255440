package identity

import (
	"fmt"
	"regexp"
	"strings"
)

// Delimiter joins the two participant addresses of a conversation id.
// It can never appear inside a wallet address.
const Delimiter = "_"

var addressRegexp = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// Normalize lowercases and trims a wallet address for comparison and storage.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Valid reports whether addr is a normalized 20-byte hex wallet address.
func Valid(addr string) bool {
	return addressRegexp.MatchString(addr)
}

// ConversationID derives the canonical conversation id for two participants:
// both addresses normalized, sorted, joined by Delimiter. Symmetric in its
// arguments: ConversationID(a, b) == ConversationID(b, a).
func ConversationID(a, b string) string {
	na, nb := Normalize(a), Normalize(b)
	if na > nb {
		na, nb = nb, na
	}
	return na + Delimiter + nb
}

// IntegrityError indicates a conversation id whose halves do not include the
// local account. Rows carrying it are excluded from listings, never guessed at.
type IntegrityError struct {
	ConversationID string
	Self           string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("conversation %q does not involve account %s", e.ConversationID, Shorten(e.Self))
}

// PeerOf returns the other participant of a conversation id relative to self.
// Returns an IntegrityError if self matches neither half or the id is malformed.
func PeerOf(conversationID, self string) (string, error) {
	self = Normalize(self)
	left, right, ok := strings.Cut(conversationID, Delimiter)
	if !ok {
		return "", &IntegrityError{ConversationID: conversationID, Self: self}
	}
	switch self {
	case left:
		return right, nil
	case right:
		return left, nil
	}
	return "", &IntegrityError{ConversationID: conversationID, Self: self}
}

// Shorten abbreviates an address for log output, e.g. "0x1234...5678".
func Shorten(addr string) string {
	if len(addr) < 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
