package content

import (
	"strings"
	"unicode"
)

// Clean returns a copy of t in which every string field, at any depth of nested trees,
// has its trailing whitespace removed. Leading and internal whitespace is kept, and a
// string that is all whitespace becomes the empty string. Sequences, numbers, booleans
// and nulls are copied unchanged. The input is never modified.
func Clean(t *Tree) *Tree {
	if t == nil {
		return nil
	}
	out := &Tree{
		fields: make([]Field, len(t.fields)),
		index:  make(map[string]int, len(t.fields)),
	}
	for i, f := range t.fields {
		out.fields[i] = Field{Name: f.Name, Value: cleanValue(f.Value)}
		out.index[f.Name] = i
	}
	return out
}

func cleanValue(v Value) Value {
	switch v.kind {
	case KindString:
		return String(TrimTrailing(v.str))
	case KindTree:
		return TreeValue(Clean(v.tree))
	default:
		return v.clone()
	}
}

// TrimTrailing removes trailing whitespace from s. Non-breaking spaces are content, not
// whitespace, and are kept.
func TrimTrailing(s string) string {
	return strings.TrimRightFunc(s, isWhitespace)
}

// isWhitespace matches the ASCII control separators and the Unicode space, line and paragraph
// separators, except the non-breaking ones
func isWhitespace(r rune) bool {
	switch r {
	case '\u00a0', '\u2007', '\u202f':
		return false
	case '\t', '\n', '\v', '\f', '\r', '\x1c', '\x1d', '\x1e', '\x1f':
		return true
	}
	return unicode.In(r, unicode.Zs, unicode.Zl, unicode.Zp)
}
