// Package contenthash fingerprints page content so that a client and the
// server can tell whether a body changed without comparing it byte by byte.
package contenthash

import (
	"strconv"
	"unicode/utf16"
)

// Sum returns the fingerprint of content.
//
// The value is a 32-bit rolling polynomial (h*31 + unit) over the UTF-16 code
// units of content, wrapped to int32 and rendered as its absolute value in
// base 36. Browser editors compute the same value, so hashes computed on
// either side of the wire compare equal.
func Sum(content string) string {
	var h int32
	for _, unit := range utf16.Encode([]rune(content)) {
		h = (h << 5) - h + int32(unit)
	}

	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}

// Equal reports whether content fingerprints to hash.
func Equal(content, hash string) bool {
	return Sum(content) == hash
}
