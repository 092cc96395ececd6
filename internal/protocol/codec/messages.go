package codec

import (
	"github.com/danmuck/edilink/internal/protocol/schema"
	"github.com/danmuck/edilink/internal/protocol/wire"
)

// Header is stamped fresh on every outbound message.
type Header struct {
	Host      string
	Process   string
	Timestamp float64
	MessageID string
}

// NewHeader builds a header for messageID with a client-local wall-clock
// timestamp in milliseconds.
func NewHeader(host, process, messageID string, millis int64) Header {
	return Header{
		Host:      host,
		Process:   process,
		Timestamp: float64(millis),
		MessageID: messageID,
	}
}

func (h Header) MessageType() string { return schema.MsgHeader }

func (h Header) Marshal() []byte {
	var b []byte
	b = wire.AppendString(b, schema.FieldHeaderHost, h.Host)
	b = wire.AppendString(b, schema.FieldHeaderProcess, h.Process)
	b = wire.AppendDouble(b, schema.FieldHeaderTimestamp, h.Timestamp)
	b = wire.AppendString(b, schema.FieldHeaderMessageID, h.MessageID)
	return b
}

func (h *Header) Unmarshal(b []byte) error {
	fields, err := decodeFields(schema.MsgHeader, b)
	if err != nil {
		return err
	}
	var out Header
	if out.Host, err = requiredString(schema.MsgHeader, fields, schema.FieldHeaderHost); err != nil {
		return err
	}
	if out.Process, err = requiredString(schema.MsgHeader, fields, schema.FieldHeaderProcess); err != nil {
		return err
	}
	if out.MessageID, err = requiredString(schema.MsgHeader, fields, schema.FieldHeaderMessageID); err != nil {
		return err
	}
	ts, _ := wire.GetField(fields, schema.FieldHeaderTimestamp)
	if out.Timestamp, err = wire.Double(ts); err != nil {
		return decodeError(schema.MsgHeader, err)
	}
	*h = out
	return nil
}

type RequestSystemInfo struct {
	Header *Header
}

func (m RequestSystemInfo) MessageType() string { return schema.MsgRequestSystemInfo }

func (m RequestSystemInfo) Marshal() []byte {
	return appendHeader(nil, m.Header)
}

func (m *RequestSystemInfo) Unmarshal(b []byte) error {
	fields, err := decodeFields(schema.MsgRequestSystemInfo, b)
	if err != nil {
		return err
	}
	h, err := optionalHeader(schema.MsgRequestSystemInfo, fields)
	if err != nil {
		return err
	}
	*m = RequestSystemInfo{Header: h}
	return nil
}

type RequestSystemStatus struct {
	Header *Header
}

func (m RequestSystemStatus) MessageType() string { return schema.MsgRequestSystemStatus }

func (m RequestSystemStatus) Marshal() []byte {
	return appendHeader(nil, m.Header)
}

func (m *RequestSystemStatus) Unmarshal(b []byte) error {
	fields, err := decodeFields(schema.MsgRequestSystemStatus, b)
	if err != nil {
		return err
	}
	h, err := optionalHeader(schema.MsgRequestSystemStatus, fields)
	if err != nil {
		return err
	}
	*m = RequestSystemStatus{Header: h}
	return nil
}

// Acquisition turns acquisition on for any non-zero Command.
type Acquisition struct {
	Header  *Header
	Command int32
}

func (m Acquisition) MessageType() string { return schema.MsgAcquisition }

func (m Acquisition) Enabled() bool { return m.Command != 0 }

func (m Acquisition) Marshal() []byte {
	b := appendHeader(nil, m.Header)
	return wire.AppendInt32(b, schema.FieldCommand, m.Command)
}

func (m *Acquisition) Unmarshal(b []byte) error {
	h, cmd, err := decodeCommand(schema.MsgAcquisition, b)
	if err != nil {
		return err
	}
	*m = Acquisition{Header: h, Command: cmd}
	return nil
}

// Recording turns recording on for any non-zero Command.
type Recording struct {
	Header  *Header
	Command int32
}

func (m Recording) MessageType() string { return schema.MsgRecording }

func (m Recording) Enabled() bool { return m.Command != 0 }

func (m Recording) Marshal() []byte {
	b := appendHeader(nil, m.Header)
	return wire.AppendInt32(b, schema.FieldCommand, m.Command)
}

func (m *Recording) Unmarshal(b []byte) error {
	h, cmd, err := decodeCommand(schema.MsgRecording, b)
	if err != nil {
		return err
	}
	*m = Recording{Header: h, Command: cmd}
	return nil
}

func decodeCommand(messageType string, b []byte) (*Header, int32, error) {
	fields, err := decodeFields(messageType, b)
	if err != nil {
		return nil, 0, err
	}
	h, err := optionalHeader(messageType, fields)
	if err != nil {
		return nil, 0, err
	}
	f, _ := wire.GetField(fields, schema.FieldCommand)
	cmd, err := wire.Int32(f)
	if err != nil {
		return nil, 0, decodeError(messageType, err)
	}
	return h, cmd, nil
}

type SetDataFilePath struct {
	Header *Header
	Path   string
}

func (m SetDataFilePath) MessageType() string { return schema.MsgSetDataFilePath }

func (m SetDataFilePath) Marshal() []byte {
	b := appendHeader(nil, m.Header)
	return wire.AppendString(b, schema.FieldPath, m.Path)
}

func (m *SetDataFilePath) Unmarshal(b []byte) error {
	fields, err := decodeFields(schema.MsgSetDataFilePath, b)
	if err != nil {
		return err
	}
	h, err := optionalHeader(schema.MsgSetDataFilePath, fields)
	if err != nil {
		return err
	}
	path, err := requiredString(schema.MsgSetDataFilePath, fields, schema.FieldPath)
	if err != nil {
		return err
	}
	*m = SetDataFilePath{Header: h, Path: path}
	return nil
}

type SystemInfo struct {
	Header           Header
	SoftwareRevision string
	HardwareRevision string
}

func (m SystemInfo) MessageType() string { return schema.MsgSystemInfo }

func (m SystemInfo) Marshal() []byte {
	b := appendHeader(nil, &m.Header)
	b = wire.AppendString(b, schema.FieldSoftwareRevision, m.SoftwareRevision)
	return wire.AppendString(b, schema.FieldHardwareRevision, m.HardwareRevision)
}

func (m *SystemInfo) Unmarshal(b []byte) error {
	fields, err := decodeFields(schema.MsgSystemInfo, b)
	if err != nil {
		return err
	}
	var out SystemInfo
	if out.Header, err = requiredHeader(schema.MsgSystemInfo, fields); err != nil {
		return err
	}
	if out.SoftwareRevision, err = requiredString(schema.MsgSystemInfo, fields, schema.FieldSoftwareRevision); err != nil {
		return err
	}
	if out.HardwareRevision, err = requiredString(schema.MsgSystemInfo, fields, schema.FieldHardwareRevision); err != nil {
		return err
	}
	*m = out
	return nil
}

type SystemStatus struct {
	Header Header
	Status Status
}

func (m SystemStatus) MessageType() string { return schema.MsgSystemStatus }

func (m SystemStatus) Marshal() []byte {
	b := appendHeader(nil, &m.Header)
	return wire.AppendInt32(b, schema.FieldStatus, int32(m.Status))
}

func (m *SystemStatus) Unmarshal(b []byte) error {
	fields, err := decodeFields(schema.MsgSystemStatus, b)
	if err != nil {
		return err
	}
	h, err := requiredHeader(schema.MsgSystemStatus, fields)
	if err != nil {
		return err
	}
	f, _ := wire.GetField(fields, schema.FieldStatus)
	v, err := wire.Int32(f)
	if err != nil {
		return decodeError(schema.MsgSystemStatus, err)
	}
	*m = SystemStatus{Header: h, Status: Status(v)}
	return nil
}

type RegisterForMessage struct {
	Header    Header
	MessageID string
}

func (m RegisterForMessage) MessageType() string { return schema.MsgRegisterForMessage }

func (m RegisterForMessage) Marshal() []byte {
	b := appendHeader(nil, &m.Header)
	return wire.AppendString(b, schema.FieldRegisterMessageID, m.MessageID)
}

func (m *RegisterForMessage) Unmarshal(b []byte) error {
	fields, err := decodeFields(schema.MsgRegisterForMessage, b)
	if err != nil {
		return err
	}
	h, err := requiredHeader(schema.MsgRegisterForMessage, fields)
	if err != nil {
		return err
	}
	id, err := requiredString(schema.MsgRegisterForMessage, fields, schema.FieldRegisterMessageID)
	if err != nil {
		return err
	}
	*m = RegisterForMessage{Header: h, MessageID: id}
	return nil
}
