package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/edilink/internal/protocol"
	"github.com/danmuck/edilink/internal/testutil/testlog"
)

type part struct {
	data []byte
	more bool
}

// scriptedSocket replays queued inbound parts and records outbound parts.
type scriptedSocket struct {
	in      []part
	current part
	sent    []part
	recvErr error
}

func (s *scriptedSocket) queue(parts ...string) {
	for i, p := range parts {
		s.in = append(s.in, part{data: []byte(p), more: i < len(parts)-1})
	}
}

func (s *scriptedSocket) SendPart(data []byte, more bool) error {
	s.sent = append(s.sent, part{data: append([]byte(nil), data...), more: more})
	return nil
}

func (s *scriptedSocket) RecvPart() ([]byte, error) {
	if s.recvErr != nil {
		return nil, s.recvErr
	}
	if len(s.in) == 0 {
		return nil, errors.New("scripted: empty")
	}
	s.current = s.in[0]
	s.in = s.in[1:]
	return s.current.data, nil
}

func (s *scriptedSocket) RecvMore() (bool, error) {
	return s.current.more, nil
}

func TestSendEnvelopeFrameOrderAndFlags(t *testing.T) {
	testlog.Start(t)

	s := &scriptedSocket{}
	if err := SendEnvelope(s, Outbound("system_status", []byte{0x0a, 0x00})); err != nil {
		t.Fatalf("send envelope: %v", err)
	}
	if len(s.sent) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(s.sent))
	}
	if string(s.sent[0].data) != protocol.RouterToken || !s.sent[0].more {
		t.Fatalf("unexpected identity part: %+v", s.sent[0])
	}
	if string(s.sent[1].data) != "system_status" || !s.sent[1].more {
		t.Fatalf("unexpected message_id part: %+v", s.sent[1])
	}
	if !bytes.Equal(s.sent[2].data, []byte{0x0a, 0x00}) || s.sent[2].more {
		t.Fatalf("unexpected payload part: %+v", s.sent[2])
	}
}

func TestReceiveEnvelopeThreeParts(t *testing.T) {
	testlog.Start(t)

	s := &scriptedSocket{}
	s.queue("router", "acquisition", "\x10\x01")
	env, err := ReceiveEnvelope(s, DefaultLimits())
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if string(env.Identity) != "router" || env.MessageID != "acquisition" || string(env.Payload) != "\x10\x01" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestReceiveEnvelopeTooFewPartsDoesNotCorruptNext(t *testing.T) {
	testlog.Start(t)

	s := &scriptedSocket{}
	s.queue("router", "acquisition")
	s.queue("router", "recording", "\x10\x00")

	if _, err := ReceiveEnvelope(s, DefaultLimits()); !errors.Is(err, ErrTooFewParts) {
		t.Fatalf("expected ErrTooFewParts, got %v", err)
	}
	if _, err := ReceiveEnvelope(s, DefaultLimits()); err != nil {
		t.Fatalf("next envelope should parse: %v", err)
	}
}

func TestReceiveEnvelopeSinglePart(t *testing.T) {
	testlog.Start(t)

	s := &scriptedSocket{}
	s.queue("")
	_, err := ReceiveEnvelope(s, DefaultLimits())
	if !errors.Is(err, protocol.ErrFramingViolation) {
		t.Fatalf("expected framing violation, got %v", err)
	}
}

func TestReceiveEnvelopeExtraPartsDrained(t *testing.T) {
	testlog.Start(t)

	s := &scriptedSocket{}
	s.queue("router", "recording", "\x10\x01", "extra-1", "extra-2")
	s.queue("router", "acquisition", "\x10\x00")

	env, err := ReceiveEnvelope(s, DefaultLimits())
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if env.MessageID != "recording" || string(env.Payload) != "\x10\x01" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	next, err := ReceiveEnvelope(s, DefaultLimits())
	if err != nil {
		t.Fatalf("receive next: %v", err)
	}
	if next.MessageID != "acquisition" {
		t.Fatalf("next envelope corrupted: %+v", next)
	}
	if len(s.in) != 0 {
		t.Fatalf("expected all parts consumed, %d left", len(s.in))
	}
}

func TestReceiveEnvelopeOversizedPart(t *testing.T) {
	testlog.Start(t)

	s := &scriptedSocket{}
	s.queue("router", "set_data_file_path", string(make([]byte, 17)))
	s.queue("router", "acquisition", "\x10\x01")

	_, err := ReceiveEnvelope(s, Limits{MaxPartBytes: 16})
	if !errors.Is(err, ErrPartTooLarge) {
		t.Fatalf("expected ErrPartTooLarge, got %v", err)
	}
	if _, err := ReceiveEnvelope(s, Limits{MaxPartBytes: 16}); err != nil {
		t.Fatalf("next envelope should parse: %v", err)
	}
}

func TestReceiveEnvelopeTransportError(t *testing.T) {
	testlog.Start(t)

	boom := errors.New("boom")
	s := &scriptedSocket{recvErr: boom}
	if _, err := ReceiveEnvelope(s, DefaultLimits()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
	if err := SendEnvelope(nil, Envelope{}); !errors.Is(err, ErrNilSocket) {
		t.Fatalf("expected ErrNilSocket, got %v", err)
	}
}

func FuzzReceiveEnvelope(f *testing.F) {
	f.Add(uint8(3), []byte("router"), []byte("acquisition"), []byte{0x10, 0x01})
	f.Add(uint8(1), []byte(""), []byte(""), []byte(""))
	f.Add(uint8(7), []byte("x"), []byte("recording"), []byte{0xff})
	f.Fuzz(func(t *testing.T, n uint8, a, b, c []byte) {
		count := int(n%8) + 1
		s := &scriptedSocket{}
		pool := [][]byte{a, b, c}
		for i := 0; i < count; i++ {
			s.in = append(s.in, part{data: pool[i%3], more: i < count-1})
		}
		s.queue("router", "recording", "\x10\x01")

		env, err := ReceiveEnvelope(s, DefaultLimits())
		if count < protocol.EnvelopeParts && err == nil {
			t.Fatalf("expected violation for %d parts, got %+v", count, env)
		}
		next, err := ReceiveEnvelope(s, DefaultLimits())
		if err != nil {
			t.Fatalf("sentinel envelope failed after %d parts: %v", count, err)
		}
		if next.MessageID != "recording" {
			t.Fatalf("sentinel envelope corrupted after %d parts: %+v", count, next)
		}
	})
}

func TestReceivePartsKeepsShapeAndBounds(t *testing.T) {
	testlog.Start(t)

	s := &scriptedSocket{}
	s.queue("OpenEphys_rig", "")
	s.queue("OpenEphys_rig", "system_status", "payload", "x", "y")
	s.queue(string(bytes.Repeat([]byte{'a'}, protocol.MaxPartBytes+1)), "tail")

	probe, err := ReceiveParts(s, DefaultLimits(), 3)
	if err != nil || len(probe) != 2 || len(probe[1]) != 0 {
		t.Fatalf("probe: parts=%q err=%v", probe, err)
	}
	msg, err := ReceiveParts(s, DefaultLimits(), 3)
	if err != nil || len(msg) != 3 || string(msg[2]) != "payload" {
		t.Fatalf("bounded: parts=%q err=%v", msg, err)
	}
	if _, err := ReceiveParts(s, DefaultLimits(), 3); !errors.Is(err, ErrPartTooLarge) {
		t.Fatalf("expected ErrPartTooLarge, got %v", err)
	}
	if len(s.in) != 0 {
		t.Fatalf("oversized message not drained: %d parts left", len(s.in))
	}
}
