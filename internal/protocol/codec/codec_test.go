package codec

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/danmuck/edilink/internal/protocol"
	"github.com/danmuck/edilink/internal/protocol/schema"
	"github.com/danmuck/edilink/internal/protocol/wire"
	"github.com/danmuck/edilink/internal/testutil/testlog"
)

func testHeader(id string) *Header {
	h := NewHeader("rig-01", protocol.DefaultProcess, id, 1760000000123)
	return &h
}

func roundTrip[M any, PM interface {
	*M
	Message
	Unmarshaler
}](t *testing.T, in M) {
	t.Helper()
	b := PM(&in).Marshal()
	out, err := Decode[M, PM](b)
	if err != nil {
		t.Fatalf("decode %s: %v", PM(&in).MessageType(), err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("%s round trip mismatch: in=%+v out=%+v", PM(&in).MessageType(), in, out)
	}
	again := PM(&out).Marshal()
	if string(again) != string(b) {
		t.Fatalf("%s re-encode is not byte-identical", PM(&in).MessageType())
	}
}

func TestRoundTripEveryKind(t *testing.T) {
	testlog.Start(t)

	roundTrip(t, *testHeader(schema.MsgSystemInfo))
	roundTrip(t, RequestSystemInfo{})
	roundTrip(t, RequestSystemInfo{Header: testHeader(schema.MsgRequestSystemInfo)})
	roundTrip(t, RequestSystemStatus{})
	roundTrip(t, RequestSystemStatus{Header: testHeader(schema.MsgRequestSystemStatus)})
	roundTrip(t, Acquisition{Command: 0})
	roundTrip(t, Acquisition{Command: 1})
	roundTrip(t, Acquisition{Header: testHeader(schema.MsgAcquisition), Command: -1})
	roundTrip(t, Recording{Command: 0})
	roundTrip(t, Recording{Header: testHeader(schema.MsgRecording), Command: 1})
	roundTrip(t, SetDataFilePath{Path: ""})
	roundTrip(t, SetDataFilePath{Path: "/data/session_a"})
	roundTrip(t, SystemInfo{
		Header:           *testHeader(schema.MsgSystemInfo),
		SoftwareRevision: "version string",
		HardwareRevision: "hi.",
	})
	roundTrip(t, SystemStatus{Header: *testHeader(schema.MsgSystemStatus), Status: StatusReady})
	roundTrip(t, RegisterForMessage{Header: *testHeader(schema.MsgRegisterForMessage), MessageID: schema.MsgAcquisition})
}

func TestRoundTripLongPath(t *testing.T) {
	testlog.Start(t)

	// leave room for the tag and a three-byte length prefix
	path := strings.Repeat("p", protocol.MaxPartBytes-4)
	in := SetDataFilePath{Path: path}
	b := in.Marshal()
	if len(b) > protocol.MaxPartBytes {
		t.Fatalf("encoded path exceeds part limit: %d", len(b))
	}
	roundTrip(t, in)
}

func TestDecodeEmptyPayload(t *testing.T) {
	testlog.Start(t)

	if _, err := Decode[RequestSystemStatus](nil); err != nil {
		t.Fatalf("empty request_system_status should decode: %v", err)
	}
	if _, err := Decode[RequestSystemInfo](nil); err != nil {
		t.Fatalf("empty request_system_info should decode: %v", err)
	}

	for name, decode := range map[string]func([]byte) error{
		schema.MsgAcquisition:        func(b []byte) error { _, err := Decode[Acquisition](b); return err },
		schema.MsgRecording:          func(b []byte) error { _, err := Decode[Recording](b); return err },
		schema.MsgSetDataFilePath:    func(b []byte) error { _, err := Decode[SetDataFilePath](b); return err },
		schema.MsgSystemInfo:         func(b []byte) error { _, err := Decode[SystemInfo](b); return err },
		schema.MsgSystemStatus:       func(b []byte) error { _, err := Decode[SystemStatus](b); return err },
		schema.MsgRegisterForMessage: func(b []byte) error { _, err := Decode[RegisterForMessage](b); return err },
	} {
		if err := decode(nil); !errors.Is(err, protocol.ErrDecode) {
			t.Fatalf("%s: expected ErrDecode for empty payload, got %v", name, err)
		}
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	testlog.Start(t)

	garbage := [][]byte{
		{0xff},
		{0x12, 0x40, 'a'},
		{0x0b},
		[]byte("not protobuf at all"),
	}
	for _, b := range garbage {
		out, err := Decode[Acquisition](b)
		if !errors.Is(err, protocol.ErrDecode) {
			t.Fatalf("payload %x: expected ErrDecode, got %v", b, err)
		}
		if out != (Acquisition{}) {
			t.Fatalf("payload %x: expected zero value on failure, got %+v", b, out)
		}
	}
}

func TestDecodeBadNestedHeader(t *testing.T) {
	testlog.Start(t)

	b := wire.AppendBytes(nil, schema.FieldHeader, []byte{0x0a, 0x01, 'x'})
	b = wire.AppendInt32(b, schema.FieldCommand, 1)
	_, err := Decode[Acquisition](b)
	if !errors.Is(err, protocol.ErrDecode) {
		t.Fatalf("expected ErrDecode for header missing fields, got %v", err)
	}
	var ve schema.ValidationError
	if !errors.As(err, &ve) || ve.MessageType != schema.MsgHeader {
		t.Fatalf("expected header validation error, got %v", err)
	}
}

func TestAcquisitionEnabledNonZero(t *testing.T) {
	testlog.Start(t)

	if (Acquisition{Command: 0}).Enabled() {
		t.Fatalf("command 0 must disable")
	}
	if !(Acquisition{Command: 2}).Enabled() || !(Recording{Command: -1}).Enabled() {
		t.Fatalf("non-zero command must enable")
	}
}

func TestStatusString(t *testing.T) {
	testlog.Start(t)

	if StatusReady.String() != "READY" {
		t.Fatalf("unexpected status string %q", StatusReady.String())
	}
	if Status(42).String() != "Status(42)" {
		t.Fatalf("unexpected fallback string %q", Status(42).String())
	}
}
