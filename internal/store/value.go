package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind tags the JSON shape a Value serializes to.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindNumber
	KindBool
	// KindOpaque is the text rendering of a store type with no JSON
	// counterpart (numeric, intervals, geometric types, ranges).
	KindOpaque
	// KindDocument is already-encoded JSON (json/jsonb, arrays, composites).
	KindDocument
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindOpaque:
		return "opaque"
	case KindDocument:
		return "document"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a single cell of a query result.
type Value struct {
	kind Kind
	text string
	b    bool
	doc  json.RawMessage
}

// Null returns the SQL NULL value.
func Null() Value { return Value{kind: KindNull} }

// Text returns a string value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer number value.
func Int(i int64) Value { return Value{kind: KindNumber, text: strconv.FormatInt(i, 10)} }

// Uint returns an unsigned integer number value.
func Uint(u uint64) Value { return Value{kind: KindNumber, text: strconv.FormatUint(u, 10)} }

// Float returns a float number value. NaN and the infinities have no JSON
// number form and are returned as text ("NaN", "Infinity", "-Infinity").
func Float(f float64) Value {
	switch {
	case math.IsNaN(f):
		return Text("NaN")
	case math.IsInf(f, 1):
		return Text("Infinity")
	case math.IsInf(f, -1):
		return Text("-Infinity")
	}
	return Value{kind: KindNumber, text: strconv.FormatFloat(f, 'g', -1, 64)}
}

// Opaque returns the text fallback for an exotic store type.
func Opaque(s string) Value { return Value{kind: KindOpaque, text: s} }

// Document wraps pre-encoded JSON. Invalid JSON is demoted to Opaque text.
func Document(raw []byte) Value {
	if !json.Valid(raw) {
		return Opaque(string(raw))
	}
	doc := make(json.RawMessage, len(raw))
	copy(doc, raw)
	return Value{kind: KindDocument, doc: doc}
}

// Kind returns the value's tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is SQL NULL.
func (v Value) IsNull() bool { return v.kind == KindNull }

// String returns the value's text form. Null renders as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDocument:
		return string(v.doc)
	default:
		return v.text
	}
}

// Raw returns the encoded JSON of a document value, or nil.
func (v Value) Raw() json.RawMessage {
	if v.kind != KindDocument {
		return nil
	}
	return v.doc
}

// Equal compares two values by tag and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindDocument:
		return string(v.doc) == string(o.doc)
	default:
		return v.text == o.text
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		if v.b {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case KindNumber:
		return []byte(v.text), nil
	case KindText, KindOpaque:
		return json.Marshal(v.text)
	case KindDocument:
		return v.doc, nil
	default:
		return nil, fmt.Errorf("store: cannot marshal value of %s", v.kind)
	}
}
