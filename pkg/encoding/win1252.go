package encoding

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// EnsureUTF8 returns b unchanged when it is already valid UTF-8. Otherwise the bytes are
// assumed to come from a legacy Windows-1252 producer and are transcoded
// The second return value reports whether a transcode happened
func EnsureUTF8(b []byte) ([]byte, bool) {
	if len(b) == 0 || utf8.Valid(b) {
		return b, false
	}

	decoded, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		// Fallback: keep the raw bytes, the JSON decoder will substitute invalid sequences
		return b, false
	}

	return decoded, true
}
