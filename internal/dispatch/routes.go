package dispatch

import (
	"github.com/danmuck/edilink/internal/host"
	"github.com/danmuck/edilink/internal/protocol/codec"
	"github.com/danmuck/edilink/internal/protocol/schema"
)

// Revision strings reported in system_info replies.
const (
	SoftwareRevision = "version string"
	HardwareRevision = "hi."
)

// Default returns a table routing every registered message id.
func Default(h host.Host, process string) *Table {
	return New(h, process).MustRegister(
		NewRoute[codec.RequestSystemInfo](schema.MsgRequestSystemInfo, Handler[codec.RequestSystemInfo]{
			Status: func(codec.RequestSystemInfo) string { return "Message: request_system_info." },
			Respond: func(stamp Stamp, _ codec.RequestSystemInfo) codec.Message {
				return codec.SystemInfo{
					Header:           stamp(schema.MsgSystemInfo),
					SoftwareRevision: SoftwareRevision,
					HardwareRevision: HardwareRevision,
				}
			},
		}),
		NewRoute[codec.RequestSystemStatus](schema.MsgRequestSystemStatus, Handler[codec.RequestSystemStatus]{
			Status: func(codec.RequestSystemStatus) string { return "Message: request_system_status." },
			Respond: func(stamp Stamp, _ codec.RequestSystemStatus) codec.Message {
				return codec.SystemStatus{Header: stamp(schema.MsgSystemStatus), Status: codec.StatusReady}
			},
		}),
		NewRoute[codec.Acquisition](schema.MsgAcquisition, Handler[codec.Acquisition]{
			Status: func(m codec.Acquisition) string {
				if m.Enabled() {
					return "Message: start acquisition."
				}
				return "Message: stop acquisition."
			},
			Apply: func(h host.Host, m codec.Acquisition) error {
				h.SetAcquisitionStatus(m.Enabled())
				return nil
			},
		}),
		NewRoute[codec.Recording](schema.MsgRecording, Handler[codec.Recording]{
			Status: func(m codec.Recording) string {
				if m.Enabled() {
					return "Message: start recording."
				}
				return "Message: stop recording."
			},
			Apply: func(h host.Host, m codec.Recording) error {
				h.SetRecordingStatus(m.Enabled())
				return nil
			},
		}),
		NewRoute[codec.SetDataFilePath](schema.MsgSetDataFilePath, Handler[codec.SetDataFilePath]{
			Status: func(codec.SetDataFilePath) string { return "Message: set_data_file_path." },
			Apply: func(h host.Host, m codec.SetDataFilePath) error {
				h.SetRecordingDirectoryPrependText(m.Path)
				_, err := h.CreateNewRecordingDirectory()
				return err
			},
		}),
	)
}
