// Package peer is a minimal control-plane peer: a ROUTER socket bound with
// the routing identity clients address, tracking client registrations and
// exchanging typed messages with them.
package peer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/edilink/internal/protocol"
	"github.com/danmuck/edilink/internal/protocol/codec"
	"github.com/danmuck/edilink/internal/protocol/frame"
	"github.com/danmuck/edilink/internal/protocol/schema"
	"github.com/danmuck/edilink/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed        = errors.New("peer: closed")
	ErrUnknownClient = errors.New("peer: client not connected")
)

// Client is a connected edilink client as seen by the peer.
type Client struct {
	Identity   string
	Registered []string
	FirstSeen  time.Time
	LastSeen   time.Time
}

// Registers reports whether the client asked for messageID.
func (c Client) Registers(messageID string) bool {
	for _, id := range c.Registered {
		if id == messageID {
			return true
		}
	}
	return false
}

// Reply is a message received from a client that is not a registration.
type Reply struct {
	From      string
	MessageID string
	Payload   []byte
	Received  time.Time
}

type outbound struct {
	id     uuid.UUID
	env    frame.Envelope
	result chan error
}

type Options struct {
	Arbiter      *transport.Arbiter
	PollInterval time.Duration
	Limits       frame.Limits
	Host         string
}

// Peer owns one bound ROUTER socket. All socket I/O happens on its loop
// goroutine.
type Peer struct {
	arbiter  *transport.Arbiter
	sock     transport.Socket
	endpoint string
	poll     time.Duration
	limits   frame.Limits
	host     string
	logger   zerolog.Logger

	mu      sync.Mutex
	clients map[string]*Client
	changed chan struct{}

	out     chan outbound
	replies chan Reply
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// Bind opens a ROUTER socket with the router identity on endpoint, e.g.
// tcp://*:9928, and starts serving it.
func Bind(endpoint string, opts Options) (*Peer, error) {
	if opts.Arbiter == nil {
		opts.Arbiter = transport.Shared()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 20 * time.Millisecond
	}
	if opts.Limits.MaxPartBytes <= 0 {
		opts.Limits = frame.DefaultLimits()
	}
	if opts.Host == "" {
		opts.Host, _ = os.Hostname()
	}

	sock, err := opts.Arbiter.Open(transport.SocketOptions{
		Identity:        protocol.RouterToken,
		ReceiveTimeout:  opts.PollInterval,
		Linger:          0,
		RouterMandatory: true,
	})
	if err != nil {
		return nil, fmt.Errorf("peer: open: %w", err)
	}
	if err := sock.Bind(endpoint); err != nil {
		_ = opts.Arbiter.CloseSocket(sock, false)
		return nil, fmt.Errorf("peer: bind %s: %w", endpoint, err)
	}
	bound, err := sock.LastEndpoint()
	if err != nil || bound == "" {
		bound = endpoint
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		arbiter:  opts.Arbiter,
		sock:     sock,
		endpoint: bound,
		poll:     opts.PollInterval,
		limits:   opts.Limits,
		host:     opts.Host,
		logger:   log.With().Str("peer", bound).Logger(),
		clients:  make(map[string]*Client),
		changed:  make(chan struct{}),
		out:      make(chan outbound),
		replies:  make(chan Reply, 64),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go p.loop(ctx)
	p.logger.Info().Msg("peer bound")
	return p, nil
}

// Endpoint is the resolved bind address.
func (p *Peer) Endpoint() string { return p.endpoint }

// Replies delivers non-registration messages from clients.
func (p *Peer) Replies() <-chan Reply { return p.replies }

func (p *Peer) loop(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-p.out:
			o.result <- frame.SendEnvelope(p.sock, o.env)
			continue
		default:
		}

		ready, err := p.sock.Poll(p.poll)
		if err != nil {
			if transport.IsTerminal(err) {
				p.logger.Warn().Err(err).Msg("peer transport closed")
				return
			}
			continue
		}
		if !ready {
			continue
		}
		parts, err := frame.ReceiveParts(p.sock, p.limits, protocol.EnvelopeParts)
		if err != nil {
			if transport.IsTerminal(err) {
				return
			}
			p.logger.Warn().Err(err).Msg("peer receive")
			continue
		}
		p.handle(parts)
	}
}

func (p *Peer) handle(parts [][]byte) {
	if len(parts) < 2 {
		p.logger.Debug().Int("parts", len(parts)).Msg("peer dropped short message")
		return
	}
	from := string(parts[0])
	if len(parts) == 2 && len(parts[1]) == 0 {
		p.touch(from, "")
		p.logger.Info().Str("client", from).Msg("peer client probe")
		return
	}
	messageID := string(parts[1])
	var payload []byte
	if len(parts) > 2 {
		payload = parts[2]
	}

	if messageID == schema.MsgRegisterForMessage {
		reg, err := codec.Decode[codec.RegisterForMessage](payload)
		if err != nil {
			p.logger.Warn().Err(err).Str("client", from).Msg("peer bad registration")
			return
		}
		p.touch(from, reg.MessageID)
		p.logger.Debug().Str("client", from).Str("message_id", reg.MessageID).Msg("peer registration")
		return
	}

	p.touch(from, "")
	r := Reply{From: from, MessageID: messageID, Payload: payload, Received: time.Now()}
	select {
	case p.replies <- r:
	default:
		p.logger.Warn().Str("client", from).Str("message_id", messageID).Msg("peer reply buffer full, dropped")
	}
}

func (p *Peer) touch(identity, registered string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	c, ok := p.clients[identity]
	if !ok {
		c = &Client{Identity: identity, FirstSeen: now}
		p.clients[identity] = c
	}
	c.LastSeen = now
	if registered != "" && !c.Registers(registered) {
		c.Registered = append(c.Registered, registered)
	}
	close(p.changed)
	p.changed = make(chan struct{})
}

// Clients returns a snapshot of known clients ordered by identity.
func (p *Peer) Clients() []Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Client, 0, len(p.clients))
	for _, c := range p.clients {
		cp := *c
		cp.Registered = append([]string(nil), c.Registered...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// WaitRegistered blocks until some client has registered every id in ids.
func (p *Peer) WaitRegistered(ctx context.Context, ids ...string) (Client, error) {
	for {
		p.mu.Lock()
		changed := p.changed
		p.mu.Unlock()

		for _, c := range p.Clients() {
			all := true
			for _, id := range ids {
				if !c.Registers(id) {
					all = false
					break
				}
			}
			if all && (len(ids) > 0 || len(c.Registered) > 0) {
				return c, nil
			}
		}

		select {
		case <-ctx.Done():
			return Client{}, ctx.Err()
		case <-p.done:
			return Client{}, ErrClosed
		case <-changed:
		}
	}
}

// Send stamps a header on msg's behalf and delivers it to client to.
func (p *Peer) Send(ctx context.Context, to string, msg codec.Message) (uuid.UUID, error) {
	p.mu.Lock()
	_, known := p.clients[to]
	p.mu.Unlock()
	if !known {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownClient, to)
	}

	o := outbound{
		id:     uuid.New(),
		env:    frame.Envelope{Identity: []byte(to), MessageID: msg.MessageType(), Payload: msg.Marshal()},
		result: make(chan error, 1),
	}
	select {
	case p.out <- o:
	case <-p.done:
		return uuid.Nil, ErrClosed
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
	select {
	case err := <-o.result:
		if err != nil {
			return o.id, fmt.Errorf("peer: send %s to %s: %w", o.env.MessageID, to, err)
		}
		p.logger.Info().
			Str("command_id", o.id.String()).
			Str("client", to).
			Str("message_id", o.env.MessageID).
			Msg("peer sent")
		return o.id, nil
	case <-ctx.Done():
		return o.id, ctx.Err()
	}
}

// Request sends msg and waits for a reply with replyID from the same client.
// Replies from other exchanges that arrive meanwhile are discarded.
func (p *Peer) Request(ctx context.Context, to string, msg codec.Message, replyID string) (Reply, error) {
	id, err := p.Send(ctx, to, msg)
	if err != nil {
		return Reply{}, err
	}
	for {
		select {
		case r := <-p.replies:
			if r.From == to && r.MessageID == replyID {
				p.logger.Debug().Str("command_id", id.String()).Str("message_id", replyID).Msg("peer reply")
				return r, nil
			}
		case <-p.done:
			return Reply{}, ErrClosed
		case <-ctx.Done():
			return Reply{}, ctx.Err()
		}
	}
}

// Header stamps an outbound header for messageID.
func (p *Peer) Header(messageID string) *codec.Header {
	h := codec.NewHeader(p.host, protocol.RouterToken, messageID, time.Now().UnixMilli())
	return &h
}

// Close stops the loop and releases the socket.
func (p *Peer) Close() error {
	var err error
	p.once.Do(func() {
		p.cancel()
		<-p.done
		err = p.arbiter.CloseSocket(p.sock, false)
		p.logger.Info().Msg("peer closed")
	})
	return err
}
