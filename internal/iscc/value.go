// Package iscc implements the ISCCC binary serialization used by the BIND
// Remote Name Daemon Control protocol: a typed, recursive value tree
// (Binary/Table/List) with a canonical wire form suitable for HMAC
// signing, plus the signed packet envelope built on top of it.
package iscc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// -------------------------------------------------------------------------
// Wire constants
// -------------------------------------------------------------------------

// Type identifies the wire tag of a Value (1 byte on the wire).
type Type uint8

const (
	// TypeString is carried on the wire but never produced by this codec;
	// it decodes identically to TypeBinary.
	TypeString Type = 0x00

	// TypeBinary is the opaque-octet-string leaf type.
	TypeBinary Type = 0x01

	// TypeTable is an ordered mapping from short string keys to Values.
	TypeTable Type = 0x02

	// TypeList is an ordered sequence of Values.
	TypeList Type = 0x03
)

// String returns the human-readable name of the type tag.
func (t Type) String() string {
	switch t {
	case TypeString:
		return "String"
	case TypeBinary:
		return "Binary"
	case TypeTable:
		return "Table"
	case TypeList:
		return "List"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// tagHeaderSize is tag(1) + length(4).
const tagHeaderSize = 5

// maxKeyLen is the maximum length of a Table key (1-byte length prefix).
const maxKeyLen = 255

// nullLiteral is the 4-byte ASCII literal a missing Binary source value
// serializes to (spec: "a Binary with a missing/absent source value is
// serialized as the 4-byte ASCII literal `null`").
const nullLiteral = "null"

// -------------------------------------------------------------------------
// Codec errors
// -------------------------------------------------------------------------

// Sentinel errors raised while decoding a Value tree.
var (
	// ErrTruncated indicates the buffer ended before a declared length
	// was satisfied.
	ErrTruncated = errors.New("iscc: truncated input")

	// ErrUnknownType indicates an unrecognized type tag byte.
	ErrUnknownType = errors.New("iscc: unknown type tag")

	// ErrNotTable indicates a Table was required but a different type
	// was found (used when the envelope's _auth entry is not a Table).
	ErrNotTable = errors.New("iscc: expected table at top level")

	// ErrKeyTooLong indicates a Table key exceeds 255 bytes.
	ErrKeyTooLong = errors.New("iscc: table key exceeds 255 bytes")
)

// -------------------------------------------------------------------------
// Value — the ISCCC tagged union
// -------------------------------------------------------------------------

// Value is a node in the ISCCC value tree: exactly one of Bin, Table, or
// List is meaningful, selected by Kind. There are no integers on this
// wire — numbers travel as the ASCII decimal digits of a Binary.
type Value struct {
	Kind  Type
	Bin   []byte
	Table Table
	List  []Value
}

// Binary builds a Binary Value from raw bytes.
func Binary(b []byte) Value {
	return Value{Kind: TypeBinary, Bin: b}
}

// String builds a Binary Value from a string (the codec never emits
// TypeString; this is a convenience constructor, not a distinct wire type).
func String(s string) Value {
	return Value{Kind: TypeBinary, Bin: []byte(s)}
}

// Null builds the Binary Value used for an absent/missing source value:
// the literal 4-byte ASCII string "null".
func Null() Value {
	return Value{Kind: TypeBinary, Bin: []byte(nullLiteral)}
}

// Number builds a Binary Value carrying the ASCII decimal digits of a
// non-negative integer (version, nonce, serial, timestamps all travel
// this way on the wire).
func Number(n uint64) Value {
	return Value{Kind: TypeBinary, Bin: []byte(fmt.Sprintf("%d", n))}
}

// IsNull reports whether v is the Binary "null" literal.
func (v Value) IsNull() bool {
	return v.Kind == TypeBinary && string(v.Bin) == nullLiteral
}

// Text returns v's Binary payload as a string. Valid for TypeBinary and
// TypeString values only.
func (v Value) Text() string {
	return string(v.Bin)
}

// TableValue builds a Table Value.
func TableValue(t Table) Value {
	return Value{Kind: TypeTable, Table: t}
}

// ListValue builds a List Value.
func ListValue(items []Value) Value {
	return Value{Kind: TypeList, List: items}
}

// -------------------------------------------------------------------------
// Table — ordered string-keyed mapping
// -------------------------------------------------------------------------

// Entry is a single Table key/value pair.
type Entry struct {
	Key   string
	Value Value
}

// Table is an ordered mapping from short string keys to Values. Insertion
// order is not significant: the wire form always sorts entries by key in
// ascending byte order before serializing (canonical form, required for
// HMAC signing to be deterministic).
type Table []Entry

// Get returns the value for key and whether it was present.
func (t Table) Get(key string) (Value, bool) {
	for _, e := range t {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Set returns a copy of t with key set to v, replacing any existing entry
// for that key.
func (t Table) Set(key string, v Value) Table {
	out := make(Table, 0, len(t)+1)
	replaced := false
	for _, e := range t {
		if e.Key == key {
			out = append(out, Entry{Key: key, Value: v})
			replaced = true
			continue
		}
		out = append(out, e)
	}
	if !replaced {
		out = append(out, Entry{Key: key, Value: v})
	}
	return out
}

// sorted returns a copy of t's entries ordered by ascending key bytes.
func (t Table) sorted() []Entry {
	out := make([]Entry, len(t))
	copy(out, t)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// -------------------------------------------------------------------------
// Marshal
// -------------------------------------------------------------------------

// Marshal serializes v with its full tag+length header.
func Marshal(v Value) []byte {
	var buf bytes.Buffer
	writeValue(&buf, v)
	return buf.Bytes()
}

// MarshalTableNoHeader serializes t's entries in canonical (sorted) order
// without the wrapping tag+length header. Used for the outermost packet
// tables, whose length is instead carried by the envelope, and for the
// content that is HMAC-signed.
func MarshalTableNoHeader(t Table) []byte {
	var buf bytes.Buffer
	writeTableBody(&buf, t)
	return buf.Bytes()
}

func writeValue(buf *bytes.Buffer, v Value) {
	var body bytes.Buffer
	switch v.Kind {
	case TypeString, TypeBinary:
		body.Write(v.Bin)
	case TypeTable:
		writeTableBody(&body, v.Table)
	case TypeList:
		for _, item := range v.List {
			writeValue(&body, item)
		}
	default:
		// Unreachable for values constructed through this package's
		// constructors; treat unknown kinds as empty binaries rather
		// than panicking on a caller-built zero Value.
	}

	tag := v.Kind
	if tag != TypeTable && tag != TypeList {
		tag = TypeBinary
	}

	buf.WriteByte(byte(tag))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(body.Len()))
	buf.Write(lenBuf[:])
	buf.Write(body.Bytes())
}

func writeTableBody(buf *bytes.Buffer, t Table) {
	for _, e := range t.sorted() {
		buf.WriteByte(byte(len(e.Key)))
		buf.WriteString(e.Key)
		writeValue(buf, e.Value)
	}
}

// -------------------------------------------------------------------------
// Unmarshal
// -------------------------------------------------------------------------

// Unmarshal decodes a single tag+length-prefixed Value from the front of
// buf, returning the value and the number of bytes consumed.
func Unmarshal(buf []byte) (Value, int, error) {
	if len(buf) < tagHeaderSize {
		return Value{}, 0, fmt.Errorf("iscc: value header: %w", ErrTruncated)
	}

	tag := Type(buf[0])
	length := binary.BigEndian.Uint32(buf[1:5])
	if uint64(len(buf)-tagHeaderSize) < uint64(length) {
		return Value{}, 0, fmt.Errorf("iscc: value body (declared %d, have %d): %w",
			length, len(buf)-tagHeaderSize, ErrTruncated)
	}

	body := buf[tagHeaderSize : tagHeaderSize+int(length)]
	consumed := tagHeaderSize + int(length)

	switch tag {
	case TypeString, TypeBinary:
		return Value{Kind: TypeBinary, Bin: append([]byte(nil), body...)}, consumed, nil
	case TypeTable:
		t, err := unmarshalTableBody(body)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Kind: TypeTable, Table: t}, consumed, nil
	case TypeList:
		items, err := unmarshalListBody(body)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Kind: TypeList, List: items}, consumed, nil
	default:
		return Value{}, 0, fmt.Errorf("iscc: tag %d: %w", tag, ErrUnknownType)
	}
}

// UnmarshalTableNoHeader parses buf as a concatenation of Table entries
// with no wrapping tag+length header (the inverse of
// MarshalTableNoHeader). Entries are returned in wire order; the
// package's serializers sort entries again on output, so re-marshaling a
// parsed table always yields canonical form.
func UnmarshalTableNoHeader(buf []byte) (Table, error) {
	return unmarshalTableBody(buf)
}

func unmarshalTableBody(buf []byte) (Table, error) {
	var t Table
	for len(buf) > 0 {
		e, n, err := unmarshalEntry(buf)
		if err != nil {
			return nil, err
		}
		t = append(t, e)
		buf = buf[n:]
	}
	return t, nil
}

// unmarshalEntry decodes exactly one Table entry (key length + key +
// Value) from the front of buf and reports how many bytes it consumed.
// Exported via UnmarshalOneEntry for the envelope parser, which must
// find the auth table's boundary explicitly rather than assuming a fixed
// 51-byte offset.
func unmarshalEntry(buf []byte) (Entry, int, error) {
	if len(buf) < 1 {
		return Entry{}, 0, fmt.Errorf("iscc: table entry key length: %w", ErrTruncated)
	}
	keyLen := int(buf[0])
	rest := buf[1:]
	if len(rest) < keyLen {
		return Entry{}, 0, fmt.Errorf("iscc: table entry key (want %d, have %d): %w",
			keyLen, len(rest), ErrTruncated)
	}
	key := string(rest[:keyLen])
	rest = rest[keyLen:]

	v, n, err := Unmarshal(rest)
	if err != nil {
		return Entry{}, 0, fmt.Errorf("iscc: table entry %q: %w", key, err)
	}

	consumed := 1 + keyLen + n
	return Entry{Key: key, Value: v}, consumed, nil
}

// UnmarshalOneEntry decodes exactly one Table entry from the front of buf
// and returns it along with the number of bytes consumed. Used by the
// envelope parser to find the auth table's length explicitly instead of
// assuming a fixed-width auth block.
func UnmarshalOneEntry(buf []byte) (Entry, int, error) {
	return unmarshalEntry(buf)
}

func unmarshalListBody(buf []byte) ([]Value, error) {
	var items []Value
	for len(buf) > 0 {
		v, n, err := Unmarshal(buf)
		if err != nil {
			return nil, fmt.Errorf("iscc: list element: %w", err)
		}
		items = append(items, v)
		buf = buf[n:]
	}
	return items, nil
}
