package dispatch

import (
	"fmt"
	"strings"

	"github.com/danmuck/edilink/internal/host"
	"github.com/danmuck/edilink/internal/protocol/codec"
)

// Stamp builds a fresh outbound header for messageID.
type Stamp func(messageID string) codec.Header

// Handler describes the behavior of one message kind.
type Handler[M any] struct {
	// Status is the text sent to the host status channel after decoding.
	Status func(M) string
	// Apply performs the side effect. Nil means none.
	Apply func(host.Host, M) error
	// Respond builds the reply. Nil means no reply.
	Respond func(Stamp, M) codec.Message
}

// Route is a type-erased Handler bound to its message id.
type Route struct {
	id    string
	serve func(h host.Host, stamp Stamp, payload []byte) (codec.Message, error)
}

// ID returns the canonical message id.
func (r Route) ID() string { return r.id }

// NewRoute binds id to a handler for message kind M.
func NewRoute[M any, PM interface {
	*M
	codec.Message
	codec.Unmarshaler
}](id string, handler Handler[M]) Route {
	return Route{
		id: strings.ToLower(strings.TrimSpace(id)),
		serve: func(h host.Host, stamp Stamp, payload []byte) (resp codec.Message, err error) {
			msg, err := codec.Decode[M, PM](payload)
			if err != nil {
				return nil, err
			}
			defer func() {
				if r := recover(); r != nil {
					resp = nil
					err = fmt.Errorf("%w: %s: %v", ErrHandlerPanic, id, r)
				}
			}()
			if handler.Status != nil {
				h.SendStatusMessage(handler.Status(msg))
			}
			if handler.Apply != nil {
				if err := handler.Apply(h, msg); err != nil {
					return nil, err
				}
			}
			if handler.Respond == nil {
				return nil, nil
			}
			return handler.Respond(stamp, msg), nil
		},
	}
}
