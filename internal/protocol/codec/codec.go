package codec

import (
	"fmt"

	"github.com/danmuck/edilink/internal/protocol"
	"github.com/danmuck/edilink/internal/protocol/schema"
	"github.com/danmuck/edilink/internal/protocol/wire"
	"google.golang.org/protobuf/encoding/protowire"
)

// Message is one schema-defined payload.
type Message interface {
	MessageType() string
	Marshal() []byte
}

// Unmarshaler is implemented by pointers to every Message kind.
type Unmarshaler interface {
	Unmarshal(b []byte) error
}

// Decode parses b into a fresh M. The zero M is returned on failure.
func Decode[M any, PM interface {
	*M
	Message
	Unmarshaler
}](b []byte) (M, error) {
	var m M
	if err := PM(&m).Unmarshal(b); err != nil {
		var zero M
		return zero, err
	}
	return m, nil
}

// decodeFields splits and validates b against messageType.
func decodeFields(messageType string, b []byte) ([]wire.Field, error) {
	fields, err := wire.DecodeFields(b)
	if err != nil {
		return nil, decodeError(messageType, err)
	}
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, decodeError(messageType, err)
	}
	return fields, nil
}

func decodeError(messageType string, err error) error {
	return fmt.Errorf("%w: %s: %w", protocol.ErrDecode, messageType, err)
}

func requiredString(messageType string, fields []wire.Field, num protowire.Number) (string, error) {
	f, _ := wire.GetField(fields, num)
	s, err := wire.String(f)
	if err != nil {
		return "", decodeError(messageType, err)
	}
	return s, nil
}

func optionalHeader(messageType string, fields []wire.Field) (*Header, error) {
	f, ok := wire.GetField(fields, schema.FieldHeader)
	if !ok {
		return nil, nil
	}
	var h Header
	if err := h.Unmarshal(f.Bytes); err != nil {
		return nil, decodeError(messageType, err)
	}
	return &h, nil
}

func requiredHeader(messageType string, fields []wire.Field) (Header, error) {
	h, err := optionalHeader(messageType, fields)
	if err != nil {
		return Header{}, err
	}
	if h == nil {
		return Header{}, decodeError(messageType, schema.ValidationError{
			MessageType: messageType,
			Field:       schema.FieldHeader,
			Reason:      "missing required field",
		})
	}
	return *h, nil
}

func appendHeader(b []byte, h *Header) []byte {
	if h == nil {
		return b
	}
	return wire.AppendMessage(b, schema.FieldHeader, h.Marshal())
}
