package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/edilink/internal/protocol/wire"
	"github.com/danmuck/edilink/internal/testutil/testlog"
)

func TestValidateAcquisitionRequiredFields(t *testing.T) {
	testlog.Start(t)
	fields, err := wire.DecodeFields(wire.AppendInt32(nil, FieldCommand, 1))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := Validate(MsgAcquisition, fields); err != nil {
		t.Fatalf("validate acquisition: %v", err)
	}
}

func TestValidateUnknownFieldsIgnored(t *testing.T) {
	testlog.Start(t)
	var b []byte
	b = wire.AppendString(b, FieldPath, "/data")
	b = wire.AppendBytes(b, 99, []byte{0x01})
	fields, err := wire.DecodeFields(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := Validate(MsgSetDataFilePath, fields); err != nil {
		t.Fatalf("validate with unknown field: %v", err)
	}
}

func TestValidateMissingRequiredDeterministic(t *testing.T) {
	testlog.Start(t)
	err := Validate(MsgRecording, nil)
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.Field != FieldCommand || ve.Reason != "missing required field" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateTypeMismatch(t *testing.T) {
	testlog.Start(t)
	fields, err := wire.DecodeFields(wire.AppendString(nil, FieldCommand, "on"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	err = Validate(MsgAcquisition, fields)
	var ve ValidationError
	if !errors.As(err, &ve) || ve.Reason != "type mismatch" {
		t.Fatalf("expected type mismatch, got %v", err)
	}
}

func TestValidateOptionalHeaderTypeChecked(t *testing.T) {
	testlog.Start(t)
	fields, err := wire.DecodeFields(wire.AppendInt32(nil, FieldHeader, 3))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := Validate(MsgRequestSystemInfo, fields); err == nil {
		t.Fatalf("expected header type mismatch")
	}
	if err := Validate(MsgRequestSystemInfo, nil); err != nil {
		t.Fatalf("empty request_system_info should validate: %v", err)
	}
}

func TestValidateUnknownMessageType(t *testing.T) {
	testlog.Start(t)
	if err := Validate("foo", nil); err == nil {
		t.Fatalf("expected unknown message_type error")
	}
	if Known("foo") {
		t.Fatalf("foo should not be known")
	}
}

func TestRegistrationsOrderAndCopy(t *testing.T) {
	testlog.Start(t)
	got := Registrations()
	want := []string{
		MsgSetDataFilePath,
		MsgRequestSystemInfo,
		MsgRequestSystemStatus,
		MsgAcquisition,
		MsgRecording,
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected registrations: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("registration[%d]=%q want %q", i, got[i], want[i])
		}
		if !Known(got[i]) {
			t.Fatalf("registration %q has no schema", got[i])
		}
	}
	got[0] = "mutated"
	if Registrations()[0] != MsgSetDataFilePath {
		t.Fatalf("registration set must not be mutable through the returned slice")
	}
}
