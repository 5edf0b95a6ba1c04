package marker

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// TagSize is the length of a double-size ISO 14443 UID.
const TagSize = 7

// ErrTagLength is returned when a parsed UID is not TagSize bytes long.
var ErrTagLength = errors.New("tag must be 7 bytes")

// Tag is the unique hardware identifier of a marker.
type Tag [TagSize]byte

// String renders the tag as colon separated hex, e.g. 04:3d:3c:12:36:1e:91.
func (t Tag) String() string {
	parts := make([]string, len(t))
	for i, b := range t {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}

// ParseTag parses a hex UID. Colons, dashes and spaces between bytes are ignored.
func ParseTag(s string) (Tag, error) {
	var t Tag

	cleaned := strings.NewReplacer(":", "", "-", "", " ", "").Replace(strings.TrimSpace(s))
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return t, fmt.Errorf("invalid tag %q: %w", s, err)
	}
	if len(raw) != TagSize {
		return t, fmt.Errorf("%w: got %d", ErrTagLength, len(raw))
	}

	copy(t[:], raw)
	return t, nil
}
