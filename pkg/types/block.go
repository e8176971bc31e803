package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// Block is one typed unit of rich page content. Value holds the decoded JSON
// value: a scalar, a map[string]any of named sub-fields, or a []any. Numbers
// are kept as json.Number so that re-encoding reproduces the stored text.
//
// Keys other than type, value and id are carried in Extra and written back
// unchanged. An element that is not a JSON object with a string "type" is
// kept verbatim as a malformed block.
type Block struct {
	Type  string
	Value any
	ID    string
	Extra map[string]any

	raw json.RawMessage
}

// Malformed reports whether the block could not be decoded. Malformed blocks
// are never handed to rules and encode back to their original bytes.
func (b Block) Malformed() bool {
	return b.raw != nil
}

// Raw returns the original bytes of a malformed block, or nil.
func (b Block) Raw() json.RawMessage {
	return b.raw
}

// MalformedBlock wraps raw JSON as a malformed block.
func MalformedBlock(raw json.RawMessage) Block {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return Block{raw: cp}
}

// UnmarshalJSON decodes a stored block. It never fails on a well-formed JSON
// document: anything that is not a block is kept as a malformed block.
func (b *Block) UnmarshalJSON(data []byte) error {
	v, err := DecodeValue(data)
	if err != nil {
		return err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		*b = MalformedBlock(data)
		return nil
	}
	typ, ok := obj["type"].(string)
	if !ok || typ == "" {
		*b = MalformedBlock(data)
		return nil
	}

	out := Block{Type: typ, Value: obj["value"]}
	if id, ok := obj["id"]; ok {
		s, isString := id.(string)
		if !isString {
			*b = MalformedBlock(data)
			return nil
		}
		out.ID = s
	}
	for k, v := range obj {
		switch k {
		case "type", "value", "id":
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]any)
		}
		out.Extra[k] = v
	}
	*b = out
	return nil
}

// MarshalJSON encodes the block in its stored form.
func (b Block) MarshalJSON() ([]byte, error) {
	if b.raw != nil {
		return b.raw, nil
	}
	obj := make(map[string]any, len(b.Extra)+3)
	for k, v := range b.Extra {
		obj[k] = v
	}
	obj["type"] = b.Type
	obj["value"] = b.Value
	if b.ID != "" {
		obj["id"] = b.ID
	}
	return EncodeValue(obj)
}

// Clone returns a deep copy of the block.
func (b Block) Clone() Block {
	if b.raw != nil {
		return MalformedBlock(b.raw)
	}
	out := Block{
		Type:  b.Type,
		Value: CloneValue(b.Value),
		ID:    b.ID,
	}
	if b.Extra != nil {
		out.Extra = CloneValue(b.Extra).(map[string]any)
	}
	return out
}

// ContentTree is the ordered list of blocks stored in one StreamField column.
type ContentTree []Block

// ParseTree decodes a stored StreamField value. Empty input and JSON null
// decode to an empty tree. Older revisions store the stream as a JSON string
// holding the array; that form is unwrapped.
func ParseTree(data []byte) (ContentTree, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ContentTree{}, nil
	}
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTree, err)
		}
		return ParseTree([]byte(inner))
	}
	if data[0] != '[' {
		return nil, ErrInvalidTree
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTree, err)
	}
	tree := make(ContentTree, 0, len(elems))
	for _, elem := range elems {
		var b Block
		if err := b.UnmarshalJSON(elem); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTree, err)
		}
		tree = append(tree, b)
	}
	return tree, nil
}

// TreeFromValue converts a decoded JSON value (as found inside a revision's
// content object) into a content tree.
func TreeFromValue(v any) (ContentTree, error) {
	if s, ok := v.(string); ok {
		return ParseTree([]byte(s))
	}
	data, err := EncodeValue(v)
	if err != nil {
		return nil, err
	}
	return ParseTree(data)
}

// Marshal encodes the tree in its stored form. A nil tree encodes as [].
func (t ContentTree) Marshal() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return EncodeValue([]Block(t))
}

// Clone returns a deep copy of the tree.
func (t ContentTree) Clone() ContentTree {
	if t == nil {
		return nil
	}
	out := make(ContentTree, len(t))
	for i, b := range t {
		out[i] = b.Clone()
	}
	return out
}

// Equal reports whether two trees encode to equivalent JSON.
func (t ContentTree) Equal(other ContentTree) bool {
	a, errA := t.Marshal()
	b, errB := other.Marshal()
	if errA != nil || errB != nil {
		return false
	}
	return EqualJSON(a, b)
}

// DecodeValue decodes a JSON document keeping numbers as json.Number.
func DecodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

// EncodeValue encodes v as compact JSON without escaping <, > and &, so
// rich text keeps the bytes it was stored with.
func EncodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// CloneValue deep-copies a decoded JSON value. Maps and slices are copied;
// scalars are immutable and returned as is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = CloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	default:
		return v
	}
}

// EqualValues reports whether two decoded values encode to equivalent JSON.
func EqualValues(a, b any) bool {
	da, errA := json.Marshal(a)
	db, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return EqualJSON(da, db)
}

// EqualJSON reports whether two JSON documents are semantically equal.
func EqualJSON(a, b []byte) bool {
	va, errA := DecodeValue(a)
	vb, errB := DecodeValue(b)
	if errA != nil || errB != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}
