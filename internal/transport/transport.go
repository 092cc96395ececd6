package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/edilink/internal/protocol/frame"
)

var (
	ErrTimeout      = errors.New("transport: timed out")
	ErrClosed       = errors.New("transport: context or socket closed")
	ErrContextInUse = errors.New("transport: context still referenced")
	ErrNotAcquired  = errors.New("transport: release without reference")
)

// IdentityPrefix leads every client routing identity.
const IdentityPrefix = "OpenEphys_"

// SocketOptions configures a client ROUTER socket before connect.
type SocketOptions struct {
	Identity       string
	ReceiveTimeout time.Duration
	ProbeRouter    bool
	Linger         time.Duration
	// RouterMandatory makes sends to an unknown identity fail instead of
	// being dropped silently.
	RouterMandatory bool
}

// DefaultSocketOptions mirrors the client convention: bounded receive wait,
// peer probing on connect, and a close that never waits to flush.
func DefaultSocketOptions(identity string) SocketOptions {
	return SocketOptions{
		Identity:       identity,
		ReceiveTimeout: 100 * time.Millisecond,
		ProbeRouter:    true,
		Linger:         0,
	}
}

// Socket is a multi-part ROUTER socket.
type Socket interface {
	frame.Socket
	Connect(endpoint string) error
	Bind(endpoint string) error
	// LastEndpoint reports the resolved address of the last Bind, which
	// matters when binding a wildcard port.
	LastEndpoint() (string, error)
	// Poll waits up to timeout for inbound data.
	Poll(timeout time.Duration) (bool, error)
	Close() error
}

// Context is the shared transport handle sockets are created from.
type Context interface {
	NewSocket(opts SocketOptions) (Socket, error)
	Term() error
}

// Factory creates a new Context.
type Factory func() (Context, error)

// Endpoint renders a tcp endpoint for host and port.
func Endpoint(host string, port int) string {
	return "tcp://" + net.JoinHostPort(strings.TrimSpace(host), strconv.Itoa(port))
}

// Identity derives a routing identity from the host name and, when one is
// available, the process id.
func Identity(hostname string, pid int) string {
	id := IdentityPrefix + strings.TrimSpace(hostname)
	if pid > 0 {
		id += "_" + strconv.Itoa(pid)
	}
	return id
}

// ProcessIdentity is Identity for the current process.
func ProcessIdentity(hostname string) string {
	return Identity(hostname, os.Getpid())
}

// IsTerminal reports whether err means the socket can no longer be used.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrClosed)
}

func wrapErr(op string, err error, mapped error) error {
	if mapped == nil {
		return fmt.Errorf("transport: %s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", mapped, op, err)
}
