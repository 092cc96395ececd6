package frame

import (
	"errors"
	"fmt"

	"github.com/danmuck/edilink/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	ErrTooFewParts  = fmt.Errorf("%w: fewer than %d parts", protocol.ErrFramingViolation, protocol.EnvelopeParts)
	ErrPartTooLarge = fmt.Errorf("%w: part exceeds size limit", protocol.ErrFramingViolation)
	ErrNilSocket    = errors.New("frame: nil socket")
)

// Socket is the multi-part transport surface framing needs. RecvMore
// reports whether the part just received is followed by another part of
// the same message.
type Socket interface {
	SendPart(data []byte, more bool) error
	RecvPart() ([]byte, error)
	RecvMore() (bool, error)
}

// Envelope is one logical message: routing identity, message id, payload.
type Envelope struct {
	Identity  []byte
	MessageID string
	Payload   []byte
}

// Outbound builds an envelope addressed to the control-plane peer.
func Outbound(messageID string, payload []byte) Envelope {
	return Envelope{
		Identity:  []byte(protocol.RouterToken),
		MessageID: messageID,
		Payload:   payload,
	}
}

// Limits constrains receive-side memory use.
type Limits struct {
	MaxPartBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxPartBytes: protocol.MaxPartBytes}
}

// SendEnvelope writes identity, message id and payload in order. The first
// two parts are flagged as more-to-follow, the payload is terminal.
func SendEnvelope(s Socket, env Envelope) error {
	if s == nil {
		return ErrNilSocket
	}
	if err := s.SendPart(env.Identity, true); err != nil {
		return fmt.Errorf("frame: send identity: %w", err)
	}
	if err := s.SendPart([]byte(env.MessageID), true); err != nil {
		return fmt.Errorf("frame: send message_id: %w", err)
	}
	if err := s.SendPart(env.Payload, false); err != nil {
		return fmt.Errorf("frame: send payload: %w", err)
	}
	return nil
}

// ReceiveEnvelope reads parts until the transport reports no more parts for
// the current message. Parts are assigned positionally; parts past the
// payload are drained and discarded. A message with fewer than three parts,
// or with an oversized part, is consumed whole and reported as a framing
// violation so the next receive starts on a message boundary.
func ReceiveEnvelope(s Socket, limits Limits) (Envelope, error) {
	if s == nil {
		return Envelope{}, ErrNilSocket
	}
	if limits.MaxPartBytes <= 0 {
		limits = DefaultLimits()
	}

	var (
		env      Envelope
		parts    int
		oversize bool
	)
	for {
		part, err := s.RecvPart()
		if err != nil {
			return Envelope{}, fmt.Errorf("frame: receive part %d: %w", parts, err)
		}
		if len(part) > limits.MaxPartBytes {
			oversize = true
		}
		switch parts {
		case 0:
			env.Identity = part
		case 1:
			env.MessageID = string(part)
		case 2:
			env.Payload = part
		}
		parts++

		more, err := s.RecvMore()
		if err != nil {
			return Envelope{}, fmt.Errorf("frame: receive more flag: %w", err)
		}
		if !more {
			break
		}
	}

	if parts > protocol.EnvelopeParts {
		log.Debug().
			Int("parts", parts).
			Str("message_id", env.MessageID).
			Msg("frame.ReceiveEnvelope discarded trailing parts")
	}
	if parts < protocol.EnvelopeParts {
		return Envelope{}, fmt.Errorf("%w: got %d", ErrTooFewParts, parts)
	}
	if oversize {
		return Envelope{}, fmt.Errorf("%w: limit %d", ErrPartTooLarge, limits.MaxPartBytes)
	}
	return env, nil
}

// ReceiveParts reads one whole message of any shape. At most maxParts parts
// are kept; the rest are drained. An oversized part fails the message after
// it has been drained.
func ReceiveParts(s Socket, limits Limits, maxParts int) ([][]byte, error) {
	if s == nil {
		return nil, ErrNilSocket
	}
	if limits.MaxPartBytes <= 0 {
		limits = DefaultLimits()
	}
	var (
		parts    [][]byte
		seen     int
		oversize bool
	)
	for {
		part, err := s.RecvPart()
		if err != nil {
			return nil, fmt.Errorf("frame: receive part %d: %w", seen, err)
		}
		if len(part) > limits.MaxPartBytes {
			oversize = true
		}
		if maxParts <= 0 || len(parts) < maxParts {
			parts = append(parts, part)
		}
		seen++

		more, err := s.RecvMore()
		if err != nil {
			return nil, fmt.Errorf("frame: receive more flag: %w", err)
		}
		if !more {
			break
		}
	}
	if oversize {
		return nil, fmt.Errorf("%w: limit %d", ErrPartTooLarge, limits.MaxPartBytes)
	}
	return parts, nil
}
