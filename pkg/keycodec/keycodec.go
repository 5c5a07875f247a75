// Package keycodec implements the order-preserving binary key encoding used
// by the storage engine and the secondary-index subsystem: any two values
// of one kind encode to byte slices whose order under bytes.Compare is
// their order under value.Compare.
package keycodec

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/cuemby/graphd/pkg/value"
)

// Type tags precede every encoded value so decoding is self-describing and
// so values of different kinds sort by kind first, in value.Compare's kind
// order. Empty and Null share tagNull, and Date, Time and DateTime share
// tagTime (ordered by instant), so the encoding does not tell those kinds
// apart; they decode as Null and DateTime.
const (
	tagNull uint8 = iota
	tagBool
	tagInt
	tagFloat
	tagString
	tagTime
)

// EncodeValue appends the order-preserving encoding of v to dst and returns
// the result. Only scalar kinds used by index keys are supported; composite
// kinds are rejected since they are never indexable fields.
func EncodeValue(dst []byte, v value.Value) ([]byte, error) {
	switch v.Kind {
	case value.KindNull, value.KindEmpty:
		return append(dst, tagNull), nil
	case value.KindBool:
		dst = append(dst, tagBool)
		if v.Bool {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil
	case value.KindInt:
		dst = append(dst, tagInt)
		return appendOrderedInt64(dst, v.Int), nil
	case value.KindFloat:
		dst = append(dst, tagFloat)
		return appendOrderedFloat64(dst, v.Float), nil
	case value.KindString:
		dst = append(dst, tagString)
		return appendOrderedString(dst, v.Str), nil
	case value.KindDate, value.KindTime, value.KindDateTime:
		dst = append(dst, tagTime)
		return appendOrderedInt64(dst, v.Time.UnixNano()), nil
	default:
		return nil, fmt.Errorf("keycodec: value kind %s is not encodable as a key component", v.Kind)
	}
}

// DecodeValue decodes a single value component from the front of src and
// returns the value plus the remaining bytes.
func DecodeValue(src []byte) (value.Value, []byte, error) {
	if len(src) == 0 {
		return value.Value{}, nil, fmt.Errorf("keycodec: empty input")
	}
	tag, rest := src[0], src[1:]
	switch tag {
	case tagNull:
		return value.Null(), rest, nil
	case tagBool:
		if len(rest) < 1 {
			return value.Value{}, nil, fmt.Errorf("keycodec: truncated bool")
		}
		return value.Bool(rest[0] != 0), rest[1:], nil
	case tagInt:
		i, rest, err := readOrderedInt64(rest)
		return value.Int(i), rest, err
	case tagFloat:
		f, rest, err := readOrderedFloat64(rest)
		return value.Float(f), rest, err
	case tagString:
		s, rest, err := readOrderedString(rest)
		return value.String(s), rest, err
	case tagTime:
		i, rest, err := readOrderedInt64(rest)
		if err != nil {
			return value.Value{}, nil, err
		}
		return value.DateTime(time.Unix(0, i).UTC()), rest, nil
	default:
		return value.Value{}, nil, fmt.Errorf("keycodec: unknown tag %d", tag)
	}
}

// EncodeComposite encodes an ordered tuple of values, each length-delimited
// internally by its own encoding, so the concatenation is itself a valid
// prefix-comparable key. Order between composites is lexicographic over the
// encoded components, matching field order in an index definition.
func EncodeComposite(values []value.Value) ([]byte, error) {
	var buf []byte
	var err error
	for _, v := range values {
		buf, err = EncodeValue(buf, v)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// EncodePrefixRange returns the half-open byte range [prefix, prefixEnd),
// where prefixEnd is prefix with 0xFF appended. It contains every key that
// begins with prefix unless the byte right after the prefix is itself 0xFF.
func EncodePrefixRange(prefix []byte) (start, end []byte) {
	start = append([]byte(nil), prefix...)
	end = append(append([]byte(nil), prefix...), 0xFF)
	return start, end
}

// EncodeRange returns the half-open range [start, end) for two encoded
// bounds, useful for building scan ranges directly from encoded values
// rather than a raw prefix.
func EncodeRange(lowEncoded, highEncoded []byte) (start, end []byte) {
	return lowEncoded, highEncoded
}

// appendOrderedInt64 flips the sign bit so two's-complement int64 values
// sort correctly as unsigned big-endian bytes.
func appendOrderedInt64(dst []byte, v int64) []byte {
	u := uint64(v) ^ (1 << 63)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], u)
	return append(dst, buf[:]...)
}

func readOrderedInt64(src []byte) (int64, []byte, error) {
	if len(src) < 8 {
		return 0, nil, fmt.Errorf("keycodec: truncated int")
	}
	u := binary.BigEndian.Uint64(src[:8])
	v := int64(u ^ (1 << 63))
	return v, src[8:], nil
}

// appendOrderedFloat64 maps IEEE-754 bits so big-endian byte order matches
// numeric order: flip the sign bit for positives, flip all bits for
// negatives.
func appendOrderedFloat64(dst []byte, v float64) []byte {
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], bits)
	return append(dst, buf[:]...)
}

func readOrderedFloat64(src []byte) (float64, []byte, error) {
	if len(src) < 8 {
		return 0, nil, fmt.Errorf("keycodec: truncated float")
	}
	bits := binary.BigEndian.Uint64(src[:8])
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), src[8:], nil
}

// String bytes are written raw with 0x00 escaped as 0x00 0xFF and the whole
// run terminated by 0x00 0x01. The terminator sorts below every escaped or
// literal continuation byte, so a string always orders before any of its
// extensions and byte compare over the encoding equals string compare over
// the values. Raw leading bytes also keep string index keys prefix-scannable.
const (
	strEscape     = 0x00
	strEscapedNul = 0xFF
	strTerminator = 0x01
)

func appendOrderedString(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		if s[i] == strEscape {
			dst = append(dst, strEscape, strEscapedNul)
			continue
		}
		dst = append(dst, s[i])
	}
	return append(dst, strEscape, strTerminator)
}

func readOrderedString(src []byte) (string, []byte, error) {
	var out []byte
	for i := 0; i < len(src); i++ {
		if src[i] != strEscape {
			out = append(out, src[i])
			continue
		}
		if i+1 >= len(src) {
			return "", nil, fmt.Errorf("keycodec: truncated string escape")
		}
		switch src[i+1] {
		case strTerminator:
			return string(out), src[i+2:], nil
		case strEscapedNul:
			out = append(out, strEscape)
			i++
		default:
			return "", nil, fmt.Errorf("keycodec: invalid string escape %#x", src[i+1])
		}
	}
	return "", nil, fmt.Errorf("keycodec: unterminated string")
}
