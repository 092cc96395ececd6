package codec

import "fmt"

// Status is the system_status state enum.
type Status int32

const (
	StatusUnknown Status = 0
	StatusReady   Status = 1
	StatusBusy    Status = 2
	StatusError   Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "UNKNOWN"
	case StatusReady:
		return "READY"
	case StatusBusy:
		return "BUSY"
	case StatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}
