package wire

import (
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/edilink/internal/testutil/testlog"
)

func TestFieldsRoundTrip(t *testing.T) {
	testlog.Start(t)

	var b []byte
	b = AppendString(b, 1, "host-a")
	b = AppendInt32(b, 2, 1)
	b = AppendDouble(b, 3, 1760000000123)
	b = AppendBool(b, 4, true)

	fields, err := DecodeFields(b)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(fields) != 4 {
		t.Fatalf("unexpected field count: %d", len(fields))
	}

	f, ok := GetField(fields, 1)
	if !ok {
		t.Fatalf("missing field 1")
	}
	if s, err := String(f); err != nil || s != "host-a" {
		t.Fatalf("string field: got=%q err=%v", s, err)
	}

	f, _ = GetField(fields, 2)
	if v, err := Int32(f); err != nil || v != 1 {
		t.Fatalf("int32 field: got=%d err=%v", v, err)
	}

	f, _ = GetField(fields, 3)
	if v, err := Double(f); err != nil || v != 1760000000123 {
		t.Fatalf("double field: got=%v err=%v", v, err)
	}
}

func TestDecodeFieldsEmptyPayload(t *testing.T) {
	testlog.Start(t)

	fields, err := DecodeFields(nil)
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if len(fields) != 0 {
		t.Fatalf("expected no fields, got %d", len(fields))
	}
}

func TestDecodeFieldsTruncatedValue(t *testing.T) {
	testlog.Start(t)

	b := AppendString(nil, 1, strings.Repeat("x", 32))
	_, err := DecodeFields(b[:len(b)-4])
	if !errors.Is(err, ErrMalformedField) {
		t.Fatalf("expected ErrMalformedField, got %v", err)
	}
}

func TestDecodeFieldsRejectsGroups(t *testing.T) {
	testlog.Start(t)

	// field 1, start-group wire type
	_, err := DecodeFields([]byte{0x0b, 0x0c})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestGetFieldLastOneWins(t *testing.T) {
	testlog.Start(t)

	var b []byte
	b = AppendInt32(b, 2, 0)
	b = AppendInt32(b, 2, 1)
	fields, err := DecodeFields(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	f, _ := GetField(fields, 2)
	if v, _ := Int32(f); v != 1 {
		t.Fatalf("expected last value 1, got %d", v)
	}
}

func TestTypedAccessorMismatch(t *testing.T) {
	testlog.Start(t)

	fields, err := DecodeFields(AppendInt32(nil, 1, 7))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := String(fields[0]); !errors.Is(err, ErrFieldTypeMismatch) {
		t.Fatalf("expected ErrFieldTypeMismatch, got %v", err)
	}
}

func TestStringRejectsInvalidUTF8(t *testing.T) {
	testlog.Start(t)

	fields, err := DecodeFields(AppendBytes(nil, 1, []byte{0xff, 0xfe}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := String(fields[0]); !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("expected ErrInvalidUTF8, got %v", err)
	}
}
