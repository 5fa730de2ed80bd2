package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureUTF8(t *testing.T) {
	tests := []struct {
		name       string
		input      []byte
		expected   string
		transcoded bool
	}{
		{"empty", []byte{}, "", false},
		{"ascii", []byte(`{"a":"b"}`), `{"a":"b"}`, false},
		{"already utf8", []byte("café ✓"), "café ✓", false},
		{"windows-1252 e acute", []byte{'c', 'a', 'f', 0xE9}, "café", true},
		{"windows-1252 euro", []byte{0x80, '5'}, "€5", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, transcoded := EnsureUTF8(tt.input)
			assert.Equal(t, tt.expected, string(out))
			assert.Equal(t, tt.transcoded, transcoded)
		})
	}
}
