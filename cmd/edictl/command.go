package main

import (
	"fmt"
	"strings"

	"github.com/danmuck/edilink/internal/peer"
	"github.com/danmuck/edilink/internal/protocol/codec"
	"github.com/danmuck/edilink/internal/protocol/schema"
)

type command struct {
	Message codec.Message
	// ReplyID is set when the client answers the message.
	ReplyID string
}

func parseCommand(args []string, stamp func(string) *codec.Header) (command, error) {
	if len(args) == 0 {
		return command{}, fmt.Errorf("missing command")
	}
	name := strings.ToLower(args[0])
	rest := args[1:]

	switch name {
	case "acquisition", "recording":
		if len(rest) != 1 {
			return command{}, fmt.Errorf("%s takes on|off", name)
		}
		cmd, err := onOff(rest[0])
		if err != nil {
			return command{}, err
		}
		if name == "acquisition" {
			return command{Message: codec.Acquisition{Header: stamp(schema.MsgAcquisition), Command: cmd}}, nil
		}
		return command{Message: codec.Recording{Header: stamp(schema.MsgRecording), Command: cmd}}, nil
	case "path":
		if len(rest) != 1 {
			return command{}, fmt.Errorf("path takes one prefix")
		}
		return command{Message: codec.SetDataFilePath{Header: stamp(schema.MsgSetDataFilePath), Path: rest[0]}}, nil
	case "info":
		return command{
			Message: codec.RequestSystemInfo{Header: stamp(schema.MsgRequestSystemInfo)},
			ReplyID: schema.MsgSystemInfo,
		}, nil
	case "status":
		return command{
			Message: codec.RequestSystemStatus{Header: stamp(schema.MsgRequestSystemStatus)},
			ReplyID: schema.MsgSystemStatus,
		}, nil
	default:
		return command{}, fmt.Errorf("unknown command %q", args[0])
	}
}

func onOff(raw string) (int32, error) {
	switch strings.ToLower(raw) {
	case "on", "1", "true":
		return 1, nil
	case "off", "0", "false":
		return 0, nil
	default:
		return 0, fmt.Errorf("expected on|off, got %q", raw)
	}
}

func formatReply(r peer.Reply) (string, error) {
	switch r.MessageID {
	case schema.MsgSystemInfo:
		var info codec.SystemInfo
		if err := info.Unmarshal(r.Payload); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s software=%q hardware=%q", info.Header.Host, info.SoftwareRevision, info.HardwareRevision), nil
	case schema.MsgSystemStatus:
		var st codec.SystemStatus
		if err := st.Unmarshal(r.Payload); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s status=%s", st.Header.Host, st.Status), nil
	default:
		return "", fmt.Errorf("unexpected reply %s", r.MessageID)
	}
}
