package session

import (
	"fmt"
	"strings"

	"github.com/danmuck/edilink/internal/transport"
)

// Endpoint is the peer address a worker connects to.
type Endpoint struct {
	URL  string `json:"url"`
	Port int    `json:"port"`
}

func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidEndpoint)
	}
	if strings.Contains(e.URL, "://") {
		return fmt.Errorf("%w: url %q must be a bare host", ErrInvalidEndpoint, e.URL)
	}
	if e.Port < 1 || e.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidEndpoint, e.Port)
	}
	return nil
}

// Address renders the transport endpoint, e.g. tcp://127.0.0.1:9928.
func (e Endpoint) Address() string {
	return transport.Endpoint(e.URL, e.Port)
}

func (e Endpoint) String() string { return e.Address() }
