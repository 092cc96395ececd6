package dispatch

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/danmuck/edilink/internal/host"
	"github.com/danmuck/edilink/internal/protocol"
	"github.com/danmuck/edilink/internal/protocol/codec"
	"github.com/danmuck/edilink/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownMessageID = errors.New("dispatch: message id not recognized")
	ErrHandlerPanic     = errors.New("dispatch: handler panicked")
	ErrRouteExists      = errors.New("dispatch: route already registered")
	ErrEmptyID          = errors.New("dispatch: empty message id")
	ErrUncovered        = errors.New("dispatch: message ids without route")
)

// NotRecognized is the status text for an unknown message id.
const NotRecognized = "Message: not recognized."

// Table routes envelopes to handlers.
type Table struct {
	host    host.Host
	process string
	routes  map[string]Route
}

// New creates an empty table. process is stamped into outbound headers.
func New(h host.Host, process string) *Table {
	if process == "" {
		process = protocol.DefaultProcess
	}
	return &Table{host: h, process: process, routes: make(map[string]Route)}
}

// Register adds a route.
func (t *Table) Register(r Route) error {
	if r.id == "" || r.serve == nil {
		return ErrEmptyID
	}
	if _, ok := t.routes[r.id]; ok {
		return fmt.Errorf("%w: %s", ErrRouteExists, r.id)
	}
	t.routes[r.id] = r
	return nil
}

// MustRegister is Register for static route sets.
func (t *Table) MustRegister(routes ...Route) *Table {
	for _, r := range routes {
		if err := t.Register(r); err != nil {
			panic(err)
		}
	}
	return t
}

// Resolve returns the route for messageID, ignoring case.
func (t *Table) Resolve(messageID string) (Route, bool) {
	r, ok := t.routes[strings.ToLower(messageID)]
	return r, ok
}

// UnknownLabel stands in for unrecognized message ids in metric labels.
const UnknownLabel = "unknown"

// Label returns the route id for messageID, or UnknownLabel. It bounds the
// values peer-supplied ids can take as metric labels.
func (t *Table) Label(messageID string) string {
	if r, ok := t.Resolve(messageID); ok {
		return r.id
	}
	return UnknownLabel
}

// IDs returns the registered message ids in sorted order.
func (t *Table) IDs() []string {
	ids := make([]string, 0, len(t.routes))
	for id := range t.routes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Covers reports an error naming every id in ids without a route.
func (t *Table) Covers(ids []string) error {
	var missing []string
	for _, id := range ids {
		if _, ok := t.Resolve(id); !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrUncovered, strings.Join(missing, ", "))
	}
	return nil
}

// Stamp builds a header using the host's name and clock.
func (t *Table) Stamp(messageID string) codec.Header {
	return codec.NewHeader(t.host.ComputerName(), t.process, messageID, t.host.CurrentTimeMillis())
}

// Dispatch runs the route for env. It returns the response envelope and true
// when the route replies. Errors are informational; the caller keeps going.
func (t *Table) Dispatch(env frame.Envelope) (frame.Envelope, bool, error) {
	r, ok := t.Resolve(env.MessageID)
	if !ok {
		log.Info().Str("message_id", env.MessageID).Msg("dispatch not recognized")
		t.host.SendStatusMessage(NotRecognized)
		return frame.Envelope{}, false, fmt.Errorf("%w: %q", ErrUnknownMessageID, env.MessageID)
	}

	resp, err := r.serve(t.host, t.Stamp, env.Payload)
	if err != nil {
		if errors.Is(err, protocol.ErrDecode) {
			t.host.SendStatusMessage(fmt.Sprintf("Message: %s malformed.", r.id))
		}
		log.Warn().Err(err).Str("message_id", r.id).Msg("dispatch failed")
		return frame.Envelope{}, false, err
	}
	log.Debug().Str("message_id", r.id).Bool("reply", resp != nil).Msg("dispatch handled")
	if resp == nil {
		return frame.Envelope{}, false, nil
	}
	return frame.Outbound(resp.MessageType(), resp.Marshal()), true, nil
}
