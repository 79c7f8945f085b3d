// Package pathkey computes the 32-bit key the external archive index uses
// to identify a virtual path, and round-trips that key to and from its
// canonical 8-hex-digit form.
package pathkey

import (
	"fmt"
	"strconv"
	"strings"
)

// Key is the 32-bit hash of a lowercased virtual path.
type Key uint32

// Hash computes the PathKey for s: lowercase s, then fold
// h = h*37 + byte over all bytes of the lowercased string, reducing modulo
// 2^32 as it goes (uint32 arithmetic wraps the same way the unbounded
// reference computation does after the final mod). Pure and byte-stable;
// the empty string hashes to 0.
func Hash(s string) Key {
	lower := strings.ToLower(s)
	var h uint32
	for i := 0; i < len(lower); i++ {
		h = h*37 + uint32(lower[i])
	}
	return Key(h)
}

// String returns the canonical uppercase 8-hex-digit form used by the
// filelist format and by the hex-named extraction fallback.
func (k Key) String() string {
	return fmt.Sprintf("%08X", uint32(k))
}

// ParseKey parses an 8-hex-digit string (case-insensitive) into a Key.
func ParseKey(s string) (Key, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("parsing path key %q: %w", s, err)
	}
	return Key(v), nil
}

// IsHexName reports whether name is exactly 8 uppercase hex digits — the
// bare form that Import recognizes as "unnamed" (Export itself names an
// entry it cannot resolve through a filelist "file_<HEX>.<ext>", whose
// <HEX> part is checked with this function too).
func IsHexName(name string) bool {
	if len(name) != 8 {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
