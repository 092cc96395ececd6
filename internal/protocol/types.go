package protocol

const (
	// RouterToken is the routing identity of the control-plane peer. Every
	// outbound envelope leads with it so the peer's ROUTER socket accepts it.
	RouterToken = "router"

	// DefaultProcess is the process name stamped into outbound headers.
	DefaultProcess = "Open_Ephys"

	// MaxPartBytes bounds a single received frame part.
	MaxPartBytes = 64000

	// EnvelopeParts is the number of logical parts in one envelope.
	EnvelopeParts = 3
)
