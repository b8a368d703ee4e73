// Author: momentics <momentics@gmail.com>
//
// Schema describes how an application wants inbound WebSocket payloads
// decoded: integers with optional byte-order conversion, variable-length
// arrays with bounded element counts, strings with bounded byte lengths,
// and a leading 1-byte case tag for switched/tagged-union payloads.
// Grounded on spec §3 "Inbound Message" and RingSocket's ringsocket_app_helper.h
// macro-declared schemas (RS_APP() family), reimplemented as composable
// Go value types instead of variadic C macros.
package api

import (
	"encoding/binary"
	"fmt"
)

// FieldKind enumerates the schema field shapes this port supports.
type FieldKind int

const (
	FieldInt8 FieldKind = iota
	FieldInt16
	FieldInt32
	FieldInt64
	FieldString
	FieldArray
	FieldSwitch
)

// ByteOrder selects host conversion for integer fields tagged as
// network-order on the wire (spec §6 "Host-independent byte order").
type ByteOrder int

const (
	NetworkOrder ByteOrder = iota // big-endian on the wire (default)
	HostOrder
)

// Field is one node of a declared payload schema.
type Field struct {
	Kind  FieldKind
	Order ByteOrder

	// FieldString
	MinLen, MaxLen int

	// FieldArray
	Elem              *Field
	MinCount, MaxCount int

	// FieldSwitch: a 1-byte case tag selects among Cases by index.
	Cases []Field
}

// Decoded is the result of decoding one schema-typed payload.
type Decoded struct {
	Kind  FieldKind
	Int   int64
	Str   string
	Arr   []Decoded
	Case  int
}

// Decode parses raw according to f, returning the decoded value and the
// number of bytes consumed. It never allocates more than the declared
// bounds allow, rejecting malformed or over-long payloads with an error
// (translated by the caller into CLOSE_PEER per spec §7).
func Decode(f *Field, raw []byte) (Decoded, int, error) {
	switch f.Kind {
	case FieldInt8:
		if len(raw) < 1 {
			return Decoded{}, 0, fmt.Errorf("%w: truncated int8", ErrInvalidFrame)
		}
		return Decoded{Kind: f.Kind, Int: int64(int8(raw[0]))}, 1, nil
	case FieldInt16:
		if len(raw) < 2 {
			return Decoded{}, 0, fmt.Errorf("%w: truncated int16", ErrInvalidFrame)
		}
		v := readU16(f.Order, raw)
		return Decoded{Kind: f.Kind, Int: int64(int16(v))}, 2, nil
	case FieldInt32:
		if len(raw) < 4 {
			return Decoded{}, 0, fmt.Errorf("%w: truncated int32", ErrInvalidFrame)
		}
		v := readU32(f.Order, raw)
		return Decoded{Kind: f.Kind, Int: int64(int32(v))}, 4, nil
	case FieldInt64:
		if len(raw) < 8 {
			return Decoded{}, 0, fmt.Errorf("%w: truncated int64", ErrInvalidFrame)
		}
		v := readU64(f.Order, raw)
		return Decoded{Kind: f.Kind, Int: int64(v)}, 8, nil
	case FieldString:
		if len(raw) < 4 {
			return Decoded{}, 0, fmt.Errorf("%w: truncated string length", ErrInvalidFrame)
		}
		n := int(readU32(f.Order, raw))
		if n < f.MinLen || (f.MaxLen > 0 && n > f.MaxLen) {
			return Decoded{}, 0, fmt.Errorf("%w: string length %d out of [%d,%d]", ErrInvalidFrame, n, f.MinLen, f.MaxLen)
		}
		if len(raw) < 4+n {
			return Decoded{}, 0, fmt.Errorf("%w: truncated string body", ErrInvalidFrame)
		}
		return Decoded{Kind: f.Kind, Str: string(raw[4 : 4+n])}, 4 + n, nil
	case FieldArray:
		if f.Elem == nil {
			return Decoded{}, 0, fmt.Errorf("%w: array field missing element schema", ErrInvalidArgument)
		}
		if len(raw) < 4 {
			return Decoded{}, 0, fmt.Errorf("%w: truncated array count", ErrInvalidFrame)
		}
		n := int(readU32(f.Order, raw))
		if n < f.MinCount || (f.MaxCount > 0 && n > f.MaxCount) {
			return Decoded{}, 0, fmt.Errorf("%w: array count %d out of [%d,%d]", ErrInvalidFrame, n, f.MinCount, f.MaxCount)
		}
		off := 4
		items := make([]Decoded, 0, n)
		for i := 0; i < n; i++ {
			d, consumed, err := Decode(f.Elem, raw[off:])
			if err != nil {
				return Decoded{}, 0, err
			}
			items = append(items, d)
			off += consumed
		}
		return Decoded{Kind: f.Kind, Arr: items}, off, nil
	case FieldSwitch:
		if len(raw) < 1 {
			return Decoded{}, 0, fmt.Errorf("%w: truncated switch tag", ErrInvalidFrame)
		}
		tag := int(raw[0])
		if tag < 0 || tag >= len(f.Cases) {
			return Decoded{}, 0, fmt.Errorf("%w: switch tag %d out of range", ErrInvalidFrame, tag)
		}
		d, consumed, err := Decode(&f.Cases[tag], raw[1:])
		if err != nil {
			return Decoded{}, 0, err
		}
		d.Case = tag
		return d, 1 + consumed, nil
	default:
		return Decoded{}, 0, fmt.Errorf("%w: unknown field kind %d", ErrInvalidArgument, f.Kind)
	}
}

func readU16(order ByteOrder, raw []byte) uint16 {
	if order == HostOrder {
		return binary.LittleEndian.Uint16(raw)
	}
	return binary.BigEndian.Uint16(raw)
}

func readU32(order ByteOrder, raw []byte) uint32 {
	if order == HostOrder {
		return binary.LittleEndian.Uint32(raw)
	}
	return binary.BigEndian.Uint32(raw)
}

func readU64(order ByteOrder, raw []byte) uint64 {
	if order == HostOrder {
		return binary.LittleEndian.Uint64(raw)
	}
	return binary.BigEndian.Uint64(raw)
}
