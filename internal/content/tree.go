// Package content models arbitrary JSON documents as a typed tree.
//
// Every leaf is one of null, string, number, boolean, nested tree or sequence, so code
// walking a document switches over a closed set of kinds instead of type-asserting
// interface values. Field order is kept as read, which makes archived output stable.
package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindTree
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindTree:
		return "tree"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ErrNotObject is returned when a document's top level is not a JSON object.
var ErrNotObject = errors.New("content: document is not a JSON object")

// Value is a single node of a document. The zero Value is null.
type Value struct {
	kind Kind
	str  string // string contents, or the literal text of a number
	b    bool
	tree *Tree
	list []Value
}

func Null() Value { return Value{} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Number(n json.Number) Value { return Value{kind: KindNumber, str: n.String()} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func List(items ...Value) Value { return Value{kind: KindList, list: items} }
func TreeValue(t *Tree) Value {
	if t == nil {
		return Null()
	}
	return Value{kind: KindTree, tree: t}
}

func (v Value) Kind() Kind { return v.kind }

// Str returns the string contents if v is a string.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// Num returns the number literal if v is a number.
func (v Value) Num() (json.Number, bool) {
	if v.kind != KindNumber {
		return "", false
	}
	return json.Number(v.str), true
}

func (v Value) Boolean() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) Tree() (*Tree, bool) {
	if v.kind != KindTree {
		return nil, false
	}
	return v.tree, true
}

// Items returns a copy of the sequence elements if v is a list.
func (v Value) Items() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return append([]Value(nil), v.list...), true
}

func (v Value) clone() Value {
	switch v.kind {
	case KindTree:
		return TreeValue(v.tree.Clone())
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.clone()
		}
		return List(items...)
	default:
		return v
	}
}

// Field is one named entry of a Tree.
type Field struct {
	Name  string
	Value Value
}

// Tree is an ordered mapping from field name to Value.
type Tree struct {
	fields []Field
	index  map[string]int
}

func NewTree() *Tree {
	return &Tree{index: make(map[string]int)}
}

// Set stores v under name. An existing field keeps its position.
func (t *Tree) Set(name string, v Value) {
	if t.index == nil {
		t.index = make(map[string]int)
	}
	if i, ok := t.index[name]; ok {
		t.fields[i].Value = v
		return
	}
	t.index[name] = len(t.fields)
	t.fields = append(t.fields, Field{Name: name, Value: v})
}

func (t *Tree) Get(name string) (Value, bool) {
	if t == nil {
		return Value{}, false
	}
	i, ok := t.index[name]
	if !ok {
		return Value{}, false
	}
	return t.fields[i].Value, true
}

// GetString returns the named field when it is present and holds a string.
func (t *Tree) GetString(name string) (string, bool) {
	v, ok := t.Get(name)
	if !ok {
		return "", false
	}
	return v.Str()
}

func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.fields)
}

// Fields returns the entries in document order.
func (t *Tree) Fields() []Field {
	if t == nil {
		return nil
	}
	return append([]Field(nil), t.fields...)
}

// Clone returns a deep copy of t.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	out := &Tree{
		fields: make([]Field, len(t.fields)),
		index:  make(map[string]int, len(t.fields)),
	}
	for i, f := range t.fields {
		out.fields[i] = Field{Name: f.Name, Value: f.Value.clone()}
		out.index[f.Name] = i
	}
	return out
}

// Parse decodes a JSON object. Duplicate keys keep the last value, as encoding/json does.
func Parse(data []byte) (*Tree, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, ErrNotObject
	}

	tree, err := parseObject(dec)
	if err != nil {
		return nil, err
	}

	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("content: unexpected data after document")
	}
	return tree, nil
}

func parseObject(dec *json.Decoder) (*Tree, error) {
	tree := NewTree()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("content: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("content: unexpected object key %v", tok)
		}
		v, err := parseValue(dec)
		if err != nil {
			return nil, err
		}
		tree.Set(name, v)
	}
	// closing brace
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}
	return tree, nil
}

func parseValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, fmt.Errorf("content: %w", err)
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			tree, err := parseObject(dec)
			if err != nil {
				return Value{}, err
			}
			return TreeValue(tree), nil
		case '[':
			var items []Value
			for dec.More() {
				item, err := parseValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, fmt.Errorf("content: %w", err)
			}
			if items == nil {
				items = []Value{}
			}
			return List(items...), nil
		default:
			return Value{}, fmt.Errorf("content: unexpected delimiter %q", t)
		}
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	default:
		return Value{}, fmt.Errorf("content: unexpected token %v", tok)
	}
}

func (t *Tree) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*t = *parsed
	return nil
}

func (t *Tree) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("null"), nil
	}
	w := newWriter()
	if err := w.tree(t); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	w := newWriter()
	if err := w.value(v); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

// writer emits compact JSON without HTML escaping, in document order.
type writer struct {
	buf     bytes.Buffer
	scratch bytes.Buffer
	enc     *json.Encoder
}

func newWriter() *writer {
	w := &writer{}
	w.enc = json.NewEncoder(&w.scratch)
	w.enc.SetEscapeHTML(false)
	return w
}

func (w *writer) string(s string) error {
	w.scratch.Reset()
	if err := w.enc.Encode(s); err != nil {
		return err
	}
	// Encode appends a newline
	w.buf.Write(bytes.TrimSuffix(w.scratch.Bytes(), []byte("\n")))
	return nil
}

func (w *writer) tree(t *Tree) error {
	w.buf.WriteByte('{')
	for i, f := range t.fields {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		if err := w.string(f.Name); err != nil {
			return err
		}
		w.buf.WriteByte(':')
		if err := w.value(f.Value); err != nil {
			return err
		}
	}
	w.buf.WriteByte('}')
	return nil
}

func (w *writer) value(v Value) error {
	switch v.kind {
	case KindNull:
		w.buf.WriteString("null")
	case KindString:
		return w.string(v.str)
	case KindNumber:
		w.buf.WriteString(v.str)
	case KindBool:
		if v.b {
			w.buf.WriteString("true")
		} else {
			w.buf.WriteString("false")
		}
	case KindTree:
		return w.tree(v.tree)
	case KindList:
		w.buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				w.buf.WriteByte(',')
			}
			if err := w.value(item); err != nil {
				return err
			}
		}
		w.buf.WriteByte(']')
	default:
		return fmt.Errorf("content: cannot encode %s", v.kind)
	}
	return nil
}
