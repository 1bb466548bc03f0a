// Package codec implements typed marshalling of the S7 primitive
// types (BOOL, INT, DINT, REAL, STRING) against a signal descriptor's
// byte/bit addressing, matching the field layouts used by
// github.com/robinson/gos7's own snap7/util helpers.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"s7gateway/internal/faults"
)

// Type is one of the supported S7 primitive types.
type Type string

const (
	Bool   Type = "bool"
	Int    Type = "int"
	Dint   Type = "dint"
	Real   Type = "real"
	String Type = "string"
)

const defaultMaxLength = 254

// Descriptor is the wire-addressing description of a single signal:
// which DB, what byte offset, what primitive type, and (for bool) the
// bit position or (for string) the declared maximum length.
type Descriptor struct {
	DBNumber  int
	Offset    int
	Type      Type
	BitPos    int  // valid iff Type == Bool
	HasBitPos bool // required iff Type == Bool
	MaxLength int  // string only; 0 means "use default"
}

// effectiveMaxLength returns the descriptor's MaxLength or the
// spec-mandated default of 254.
func (d Descriptor) effectiveMaxLength() int {
	if d.MaxLength <= 0 {
		return defaultMaxLength
	}
	return d.MaxLength
}

// Validate checks the descriptor against spec invariants: db_number
// and offset non-negative, bit_pos required iff bool and in 0..7,
// max_length in 1..254 when set.
func (d Descriptor) Validate() error {
	if d.DBNumber < 0 {
		return faults.New(faults.InvalidDescriptor, "db_number must be non-negative")
	}
	if d.Offset < 0 {
		return faults.New(faults.InvalidDescriptor, "offset must be non-negative")
	}
	switch d.Type {
	case Bool:
		if !d.HasBitPos {
			return faults.New(faults.InvalidDescriptor, "bit_pos is required for type bool")
		}
		if d.BitPos < 0 || d.BitPos > 7 {
			return faults.New(faults.InvalidDescriptor, "bit_pos must be in 0..7")
		}
	case Int, Dint, Real:
		// no extra fields
	case String:
		if d.MaxLength != 0 && (d.MaxLength < 1 || d.MaxLength > 254) {
			return faults.New(faults.InvalidDescriptor, "max_length must be in 1..254")
		}
	default:
		return faults.New(faults.TypeUnsupported, string(d.Type))
	}
	return nil
}

// Size returns the byte span in the data block this descriptor
// occupies: bool->1, int->2, dint->4, real->4, string->max_length+2.
func Size(d Descriptor) (int, error) {
	switch d.Type {
	case Bool:
		return 1, nil
	case Int:
		return 2, nil
	case Dint, Real:
		return 4, nil
	case String:
		return d.effectiveMaxLength() + 2, nil
	default:
		return 0, faults.New(faults.TypeUnsupported, string(d.Type))
	}
}

// Decode interprets raw on-wire bytes per the descriptor's type.
func Decode(d Descriptor, data []byte) (interface{}, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	switch d.Type {
	case Bool:
		if len(data) < 1 {
			return nil, faults.New(faults.CodecError, "bool: buffer too short")
		}
		return data[0]&(1<<uint(d.BitPos)) != 0, nil
	case Int:
		if len(data) < 2 {
			return nil, faults.New(faults.CodecError, "int: buffer too short")
		}
		return int16(binary.BigEndian.Uint16(data)), nil
	case Dint:
		if len(data) < 4 {
			return nil, faults.New(faults.CodecError, "dint: buffer too short")
		}
		return int32(binary.BigEndian.Uint32(data)), nil
	case Real:
		if len(data) < 4 {
			return nil, faults.New(faults.CodecError, "real: buffer too short")
		}
		return math.Float32frombits(binary.BigEndian.Uint32(data)), nil
	case String:
		if len(data) < 2 {
			return nil, faults.New(faults.CodecError, "string: buffer too short for header")
		}
		declaredMax := int(data[0])
		actualLen := int(data[1])
		maxLen := d.effectiveMaxLength()
		readLen := actualLen
		if readLen > maxLen {
			readLen = maxLen
		}
		if declaredMax > 0 && readLen > declaredMax {
			readLen = declaredMax
		}
		if len(data) < 2+readLen {
			return nil, faults.New(faults.CodecError, "string: buffer shorter than declared length")
		}
		return string(data[2 : 2+readLen]), nil
	default:
		return nil, faults.New(faults.TypeUnsupported, string(d.Type))
	}
}

// Encode coerces value into the descriptor's type and produces the
// on-wire bytes. For BOOL, INT, DINT and REAL the returned slice is
// exactly Size(d) long; for STRING it is the 2-byte header plus the
// (possibly truncated) content, which can be shorter than Size(d).
func Encode(d Descriptor, value interface{}) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	switch d.Type {
	case Bool:
		v, err := coerceBool(value)
		if err != nil {
			return nil, err
		}
		b := byte(0)
		if v {
			b = 1 << uint(d.BitPos)
		}
		return []byte{b}, nil
	case Int:
		v, err := coerceInt16(value)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 2)
		binary.BigEndian.PutUint16(out, uint16(v))
		return out, nil
	case Dint:
		v, err := coerceInt32(value)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, uint32(v))
		return out, nil
	case Real:
		v, err := coerceFloat32(value)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, math.Float32bits(v))
		return out, nil
	case String:
		v, err := coerceString(value)
		if err != nil {
			return nil, err
		}
		maxLen := d.effectiveMaxLength()
		content := v
		if len(content) > maxLen {
			content = content[:maxLen] // excess input is truncated, never rejected
		}
		out := make([]byte, 2+len(content))
		out[0] = byte(maxLen)
		out[1] = byte(len(content))
		copy(out[2:], content)
		return out, nil
	default:
		return nil, faults.New(faults.TypeUnsupported, string(d.Type))
	}
}

// EncodeBoolByte performs the read-modify-write bit set for a BOOL
// write: given the current byte at the descriptor's offset, it
// returns the byte with the descriptor's bit set/cleared per value.
func EncodeBoolByte(d Descriptor, current byte, value bool) (byte, error) {
	if !d.HasBitPos || d.BitPos < 0 || d.BitPos > 7 {
		return 0, faults.New(faults.InvalidDescriptor, "bit_pos must be in 0..7")
	}
	if value {
		return current | (1 << uint(d.BitPos)), nil
	}
	return current &^ (1 << uint(d.BitPos)), nil
}

// CoerceBool applies the same true/false coercion Encode uses for
// BOOL, without requiring a full Descriptor. Used by callers that need
// to validate/normalize a bool-typed value ahead of a read-modify-write.
func CoerceBool(value interface{}) (bool, error) {
	return coerceBool(value)
}

func coerceBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(v) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return false, faults.New(faults.ValueOutOfRange, fmt.Sprintf("cannot coerce %q to bool", v))
	default:
		return false, faults.New(faults.ValueOutOfRange, fmt.Sprintf("cannot coerce %T to bool", value))
	}
}

func coerceInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, faults.Wrap(faults.ValueOutOfRange, "coerce int", err)
		}
		return n, nil
	default:
		return 0, faults.New(faults.ValueOutOfRange, fmt.Sprintf("cannot coerce %T to integer", value))
	}
}

// CoerceInt16 applies Encode's INT coercion/range rules without a
// Descriptor, for callers that already hold a typed destination.
func CoerceInt16(value interface{}) (int16, error) { return coerceInt16(value) }

// CoerceInt32 applies Encode's DINT coercion/range rules without a
// Descriptor.
func CoerceInt32(value interface{}) (int32, error) { return coerceInt32(value) }

// CoerceFloat32 applies Encode's REAL coercion rules without a
// Descriptor.
func CoerceFloat32(value interface{}) (float32, error) { return coerceFloat32(value) }

// CoerceString applies Encode's STRING coercion rules without a
// Descriptor.
func CoerceString(value interface{}) (string, error) { return coerceString(value) }

func coerceInt16(value interface{}) (int16, error) {
	n, err := coerceInt64(value)
	if err != nil {
		return 0, err
	}
	if n < math.MinInt16 || n > math.MaxInt16 {
		return 0, faults.New(faults.ValueOutOfRange, fmt.Sprintf("%d out of range for INT", n))
	}
	return int16(n), nil
}

func coerceInt32(value interface{}) (int32, error) {
	n, err := coerceInt64(value)
	if err != nil {
		return 0, err
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, faults.New(faults.ValueOutOfRange, fmt.Sprintf("%d out of range for DINT", n))
	}
	return int32(n), nil
}

func coerceFloat32(value interface{}) (float32, error) {
	switch v := value.(type) {
	case float32:
		return v, nil
	case float64:
		return float32(v), nil
	case int:
		return float32(v), nil
	case int16:
		return float32(v), nil
	case int32:
		return float32(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return 0, faults.Wrap(faults.ValueOutOfRange, "coerce real", err)
		}
		return float32(f), nil
	default:
		return 0, faults.New(faults.ValueOutOfRange, fmt.Sprintf("cannot coerce %T to REAL", value))
	}
}

func coerceString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}
