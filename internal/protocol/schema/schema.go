package schema

import (
	"fmt"

	"github.com/danmuck/edilink/internal/protocol/wire"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/encoding/protowire"
)

// Message ids carried in the second envelope part.
const (
	MsgRegisterForMessage  = "register_for_message"
	MsgSetDataFilePath     = "set_data_file_path"
	MsgRequestSystemInfo   = "request_system_info"
	MsgRequestSystemStatus = "request_system_status"
	MsgAcquisition         = "acquisition"
	MsgRecording           = "recording"
	MsgSystemInfo          = "system_info"
	MsgSystemStatus        = "system_status"

	// MsgHeader names the nested header schema. It never travels as an
	// envelope message id.
	MsgHeader = "message_header"
)

// Header field numbers.
const (
	FieldHeaderHost      protowire.Number = 1
	FieldHeaderProcess   protowire.Number = 2
	FieldHeaderTimestamp protowire.Number = 3
	FieldHeaderMessageID protowire.Number = 4
)

// Message field numbers. Every message carries its header at field 1.
const (
	FieldHeader protowire.Number = 1

	FieldCommand           protowire.Number = 2
	FieldPath              protowire.Number = 2
	FieldStatus            protowire.Number = 2
	FieldRegisterMessageID protowire.Number = 2
	FieldSoftwareRevision  protowire.Number = 2
	FieldHardwareRevision  protowire.Number = 3
)

// registrationSet is sent once per successful connect, in this order.
var registrationSet = []string{
	MsgSetDataFilePath,
	MsgRequestSystemInfo,
	MsgRequestSystemStatus,
	MsgAcquisition,
	MsgRecording,
}

// Registrations returns a copy of the ordered registration set.
func Registrations() []string {
	out := make([]string, len(registrationSet))
	copy(out, registrationSet)
	return out
}

type Requirement struct {
	Num      protowire.Number
	Type     protowire.Type
	Required bool
}

type ValidationError struct {
	MessageType string
	Field       protowire.Number
	Reason      string
}

func (e ValidationError) Error() string {
	if e.Field == 0 {
		return fmt.Sprintf("schema: message_type=%s: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%s field=%d: %s", e.MessageType, e.Field, e.Reason)
}

var requirements = map[string][]Requirement{
	MsgHeader: {
		{FieldHeaderHost, wire.TypeBytes, true},
		{FieldHeaderProcess, wire.TypeBytes, true},
		{FieldHeaderTimestamp, wire.TypeFixed64, true},
		{FieldHeaderMessageID, wire.TypeBytes, true},
	},
	MsgRequestSystemInfo: {
		{FieldHeader, wire.TypeBytes, false},
	},
	MsgRequestSystemStatus: {
		{FieldHeader, wire.TypeBytes, false},
	},
	MsgAcquisition: {
		{FieldHeader, wire.TypeBytes, false},
		{FieldCommand, wire.TypeVarint, true},
	},
	MsgRecording: {
		{FieldHeader, wire.TypeBytes, false},
		{FieldCommand, wire.TypeVarint, true},
	},
	MsgSetDataFilePath: {
		{FieldHeader, wire.TypeBytes, false},
		{FieldPath, wire.TypeBytes, true},
	},
	MsgSystemInfo: {
		{FieldHeader, wire.TypeBytes, true},
		{FieldSoftwareRevision, wire.TypeBytes, true},
		{FieldHardwareRevision, wire.TypeBytes, true},
	},
	MsgSystemStatus: {
		{FieldHeader, wire.TypeBytes, true},
		{FieldStatus, wire.TypeVarint, true},
	},
	MsgRegisterForMessage: {
		{FieldHeader, wire.TypeBytes, true},
		{FieldRegisterMessageID, wire.TypeBytes, true},
	},
}

// Known reports whether messageType has a schema.
func Known(messageType string) bool {
	_, ok := requirements[messageType]
	return ok
}

// Validate enforces required fields and declared field types for a message type.
// Unknown fields are ignored.
func Validate(messageType string, fields []wire.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		log.Error().Str("message_type", messageType).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := wire.GetField(fields, req.Num)
		if !found {
			if !req.Required {
				continue
			}
			log.Debug().
				Str("message_type", messageType).
				Int32("field", int32(req.Num)).
				Msg("schema.Validate missing field")
			return ValidationError{MessageType: messageType, Field: req.Num, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Debug().
				Str("message_type", messageType).
				Int32("field", int32(req.Num)).
				Int8("got", int8(f.Type)).
				Int8("want", int8(req.Type)).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, Field: req.Num, Reason: "type mismatch"}
		}
	}
	return nil
}
