// Package fakezmq is an in-memory stand-in for the ZeroMQ transport used to
// drive session workers deterministically in tests.
package fakezmq

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/edilink/internal/transport"
)

var ErrInjected = errors.New("fakezmq: injected failure")

// Network creates contexts and tracks every socket opened from them.
type Network struct {
	mu         sync.Mutex
	contexts   []*Context
	sockets    []*Socket
	connectErr error
	socketErr  error
	factoryErr error
	newSocket  chan *Socket
}

func NewNetwork() *Network {
	return &Network{newSocket: make(chan *Socket, 64)}
}

// FailConnect makes every later Connect return err.
func (n *Network) FailConnect(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connectErr = err
}

// FailSocket makes every later NewSocket return err.
func (n *Network) FailSocket(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.socketErr = err
}

// FailFactory makes every later context creation return err.
func (n *Network) FailFactory(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.factoryErr = err
}

func (n *Network) Factory() transport.Factory {
	return func() (transport.Context, error) {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.factoryErr != nil {
			return nil, n.factoryErr
		}
		c := &Context{net: n}
		n.contexts = append(n.contexts, c)
		return c, nil
	}
}

func (n *Network) Contexts() []*Context {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Context(nil), n.contexts...)
}

func (n *Network) Sockets() []*Socket {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Socket(nil), n.sockets...)
}

// NextSocket waits for the next socket opened on the network.
func (n *Network) NextSocket(timeout time.Duration) (*Socket, error) {
	select {
	case s := <-n.newSocket:
		return s, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("fakezmq: no socket opened within %v", timeout)
	}
}

type Context struct {
	net    *Network
	mu     sync.Mutex
	termed bool
	open   int
}

func (c *Context) NewSocket(opts transport.SocketOptions) (transport.Socket, error) {
	c.net.mu.Lock()
	socketErr := c.net.socketErr
	connectErr := c.net.connectErr
	c.net.mu.Unlock()
	if socketErr != nil {
		return nil, socketErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.termed {
		return nil, transport.ErrClosed
	}
	c.open++
	s := &Socket{
		ctx:        c,
		opts:       opts,
		connectErr: connectErr,
		inbox:      make(chan [][]byte, 64),
		sentCh:     make(chan [][]byte, 256),
	}
	c.net.mu.Lock()
	c.net.sockets = append(c.net.sockets, s)
	c.net.mu.Unlock()
	select {
	case c.net.newSocket <- s:
	default:
	}
	return s, nil
}

// Term fails while sockets are open, surfacing lifetime violations that
// real ZeroMQ would turn into a hang.
func (c *Context) Term() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open > 0 {
		return fmt.Errorf("fakezmq: term with %d open sockets", c.open)
	}
	c.termed = true
	return nil
}

func (c *Context) Termed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.termed
}

type Socket struct {
	ctx        *Context
	opts       transport.SocketOptions
	connectErr error
	inbox      chan [][]byte
	sentCh     chan [][]byte

	mu       sync.Mutex
	endpoint string
	bound    bool
	closed   bool
	pending  [][]byte
	more     bool
	building [][]byte
	sent     [][][]byte
	stall    chan struct{}
}

func (s *Socket) Options() transport.SocketOptions { return s.opts }

func (s *Socket) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

func (s *Socket) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Deliver queues one inbound multi-part message.
func (s *Socket) Deliver(parts ...[]byte) {
	s.inbox <- parts
}

// DeliverStrings is Deliver for string parts.
func (s *Socket) DeliverStrings(parts ...string) {
	msg := make([][]byte, len(parts))
	for i, p := range parts {
		msg[i] = []byte(p)
	}
	s.Deliver(msg...)
}

// Sent returns every complete outbound message so far.
func (s *Socket) Sent() [][][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][][]byte(nil), s.sent...)
}

// WaitSent blocks until the next outbound message completes.
func (s *Socket) WaitSent(timeout time.Duration) ([][]byte, error) {
	select {
	case msg := <-s.sentCh:
		return msg, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("fakezmq: nothing sent within %v", timeout)
	}
}

func (s *Socket) Connect(endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transport.ErrClosed
	}
	if s.connectErr != nil {
		return s.connectErr
	}
	s.endpoint = endpoint
	return nil
}

// Stall makes later Poll calls block, ignoring their timeout, until the
// returned release func runs. It simulates a worker stuck in the transport.
func (s *Socket) Stall() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.stall = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.stall = nil
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Bind records endpoint. A wildcard port resolves to 5555.
func (s *Socket) Bind(endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transport.ErrClosed
	}
	s.endpoint = strings.Replace(endpoint, ":*", ":5555", 1)
	s.bound = true
	return nil
}

func (s *Socket) LastEndpoint() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.bound {
		return "", nil
	}
	return s.endpoint, nil
}

func (s *Socket) Poll(timeout time.Duration) (bool, error) {
	s.mu.Lock()
	stall := s.stall
	s.mu.Unlock()
	if stall != nil {
		<-stall
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, transport.ErrClosed
	}
	if len(s.pending) > 0 {
		s.mu.Unlock()
		return true, nil
	}
	s.mu.Unlock()

	select {
	case msg := <-s.inbox:
		s.mu.Lock()
		s.pending = msg
		s.mu.Unlock()
		return true, nil
	case <-time.After(timeout):
		return false, nil
	}
}

func (s *Socket) RecvPart() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, transport.ErrClosed
	}
	if len(s.pending) == 0 {
		select {
		case msg := <-s.inbox:
			s.pending = msg
		default:
			return nil, transport.ErrTimeout
		}
	}
	if len(s.pending) == 0 {
		return nil, transport.ErrTimeout
	}
	part := s.pending[0]
	s.pending = s.pending[1:]
	s.more = len(s.pending) > 0
	return part, nil
}

func (s *Socket) RecvMore() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.more, nil
}

func (s *Socket) SendPart(data []byte, more bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transport.ErrClosed
	}
	s.building = append(s.building, append([]byte(nil), data...))
	if more {
		return nil
	}
	msg := s.building
	s.building = nil
	s.sent = append(s.sent, msg)
	select {
	case s.sentCh <- msg:
	default:
	}
	return nil
}

func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.ctx.mu.Lock()
	s.ctx.open--
	s.ctx.mu.Unlock()
	return nil
}

// Link routes messages between a connecting client socket and a bound
// server socket the way two ROUTER sockets address each other: the first
// part of a sent message names the receiver and is replaced by the sender's
// identity on delivery. A probing client announces itself with an empty
// message. Linked sockets must not also be read with WaitSent.
func Link(client, server *Socket) (stop func()) {
	clientID := []byte(client.opts.Identity)
	serverID := []byte(server.opts.Identity)
	if client.opts.ProbeRouter {
		server.Deliver(clientID, []byte{})
	}
	quit := make(chan struct{})
	pump := func(from, to *Socket, self, peer []byte) {
		for {
			select {
			case <-quit:
				return
			case msg := <-from.sentCh:
				if len(msg) == 0 || string(msg[0]) != string(peer) || to.Closed() {
					continue
				}
				parts := append([][]byte{append([]byte(nil), self...)}, msg[1:]...)
				select {
				case to.inbox <- parts:
				case <-quit:
					return
				}
			}
		}
	}
	go pump(client, server, clientID, serverID)
	go pump(server, client, serverID, clientID)
	var once sync.Once
	return func() { once.Do(func() { close(quit) }) }
}
