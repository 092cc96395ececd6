package wire

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	ErrMalformedField    = errors.New("wire: malformed field")
	ErrUnsupportedType   = errors.New("wire: unsupported wire type")
	ErrInvalidUTF8       = errors.New("wire: invalid utf-8 string")
	ErrFieldTypeMismatch = errors.New("wire: field type mismatch")
)

// Wire types accepted by this protocol. Groups are rejected on decode.
const (
	TypeVarint  = protowire.VarintType
	TypeFixed32 = protowire.Fixed32Type
	TypeFixed64 = protowire.Fixed64Type
	TypeBytes   = protowire.BytesType
)

// Field is one decoded protobuf field. Scalar values live in Uint in their
// raw wire form; length-delimited values live in Bytes.
type Field struct {
	Num   protowire.Number
	Type  protowire.Type
	Uint  uint64
	Bytes []byte
}

func AppendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func AppendInt32(b []byte, num protowire.Number, v int32) []byte {
	return AppendVarint(b, num, uint64(int64(v)))
}

func AppendBool(b []byte, num protowire.Number, v bool) []byte {
	return AppendVarint(b, num, protowire.EncodeBool(v))
}

func AppendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func AppendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func AppendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// AppendMessage writes an already-encoded nested message.
func AppendMessage(b []byte, num protowire.Number, nested []byte) []byte {
	return AppendBytes(b, num, nested)
}

// DecodeFields splits payload into fields in wire order. An empty payload
// decodes to no fields.
func DecodeFields(payload []byte) ([]Field, error) {
	fields := make([]Field, 0, 4)
	for len(payload) > 0 {
		num, typ, n := protowire.ConsumeTag(payload)
		if n < 0 {
			return nil, fmt.Errorf("%w: tag: %v", ErrMalformedField, protowire.ParseError(n))
		}
		payload = payload[n:]

		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(payload)
			if m < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedField, num, protowire.ParseError(m))
			}
			f.Uint = v
			n = m
		case protowire.Fixed32Type:
			v, m := protowire.ConsumeFixed32(payload)
			if m < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedField, num, protowire.ParseError(m))
			}
			f.Uint = uint64(v)
			n = m
		case protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(payload)
			if m < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedField, num, protowire.ParseError(m))
			}
			f.Uint = v
			n = m
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(payload)
			if m < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedField, num, protowire.ParseError(m))
			}
			f.Bytes = append([]byte(nil), v...)
			n = m
		default:
			return nil, fmt.Errorf("%w: field %d type %d", ErrUnsupportedType, num, typ)
		}
		payload = payload[n:]
		fields = append(fields, f)
	}
	return fields, nil
}

// GetField returns the last occurrence of num, matching protobuf's
// last-one-wins rule for singular fields.
func GetField(fields []Field, num protowire.Number) (Field, bool) {
	for i := len(fields) - 1; i >= 0; i-- {
		if fields[i].Num == num {
			return fields[i], true
		}
	}
	return Field{}, false
}

func MustType(f Field, expected protowire.Type) error {
	if f.Type != expected {
		return fmt.Errorf("%w: field %d got %d want %d", ErrFieldTypeMismatch, f.Num, f.Type, expected)
	}
	return nil
}

func String(f Field) (string, error) {
	if err := MustType(f, protowire.BytesType); err != nil {
		return "", err
	}
	if !utf8.Valid(f.Bytes) {
		return "", fmt.Errorf("%w: field %d", ErrInvalidUTF8, f.Num)
	}
	return string(f.Bytes), nil
}

func Int32(f Field) (int32, error) {
	if err := MustType(f, protowire.VarintType); err != nil {
		return 0, err
	}
	return int32(f.Uint), nil
}

func Double(f Field) (float64, error) {
	if err := MustType(f, protowire.Fixed64Type); err != nil {
		return 0, err
	}
	return math.Float64frombits(f.Uint), nil
}
