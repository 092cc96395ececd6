package transport

import (
	"errors"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
)

type zmqContext struct {
	ctx *zmq4.Context
}

// NewZMQContext is the Factory for ZeroMQ-backed contexts.
func NewZMQContext() (Context, error) {
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, wrapErr("new context", err, mapErrno(err))
	}
	return &zmqContext{ctx: ctx}, nil
}

func (c *zmqContext) NewSocket(opts SocketOptions) (Socket, error) {
	sock, err := c.ctx.NewSocket(zmq4.ROUTER)
	if err != nil {
		return nil, wrapErr("new socket", err, mapErrno(err))
	}
	if err := applyOptions(sock, opts); err != nil {
		_ = sock.Close()
		return nil, err
	}
	poller := zmq4.NewPoller()
	poller.Add(sock, zmq4.POLLIN)
	return &zmqSocket{sock: sock, poller: poller}, nil
}

func (c *zmqContext) Term() error {
	if err := c.ctx.Term(); err != nil {
		return wrapErr("term", err, mapErrno(err))
	}
	return nil
}

func applyOptions(sock *zmq4.Socket, opts SocketOptions) error {
	if err := sock.SetRcvtimeo(opts.ReceiveTimeout); err != nil {
		return wrapErr("set rcvtimeo", err, nil)
	}
	if opts.Identity != "" {
		if err := sock.SetIdentity(opts.Identity); err != nil {
			return wrapErr("set identity", err, nil)
		}
	}
	if opts.ProbeRouter {
		if err := sock.SetProbeRouter(1); err != nil {
			return wrapErr("set probe_router", err, nil)
		}
	}
	if err := sock.SetLinger(opts.Linger); err != nil {
		return wrapErr("set linger", err, nil)
	}
	if opts.RouterMandatory {
		if err := sock.SetRouterMandatory(1); err != nil {
			return wrapErr("set router_mandatory", err, nil)
		}
	}
	return nil
}

type zmqSocket struct {
	sock   *zmq4.Socket
	poller *zmq4.Poller
}

func (s *zmqSocket) Connect(endpoint string) error {
	if err := s.sock.Connect(endpoint); err != nil {
		return wrapErr("connect "+endpoint, err, mapErrno(err))
	}
	return nil
}

func (s *zmqSocket) Bind(endpoint string) error {
	if err := s.sock.Bind(endpoint); err != nil {
		return wrapErr("bind "+endpoint, err, mapErrno(err))
	}
	return nil
}

func (s *zmqSocket) LastEndpoint() (string, error) {
	ep, err := s.sock.GetLastEndpoint()
	if err != nil {
		return "", wrapErr("last endpoint", err, mapErrno(err))
	}
	return ep, nil
}

func (s *zmqSocket) Poll(timeout time.Duration) (bool, error) {
	polled, err := s.poller.Poll(timeout)
	if err != nil {
		mapped := mapErrno(err)
		if errors.Is(mapped, ErrTimeout) {
			return false, nil
		}
		return false, wrapErr("poll", err, mapped)
	}
	for _, p := range polled {
		if p.Events&zmq4.POLLIN != 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *zmqSocket) SendPart(data []byte, more bool) error {
	var flags zmq4.Flag
	if more {
		flags = zmq4.SNDMORE
	}
	if _, err := s.sock.SendBytes(data, flags); err != nil {
		return wrapErr("send", err, mapErrno(err))
	}
	return nil
}

func (s *zmqSocket) RecvPart() ([]byte, error) {
	b, err := s.sock.RecvBytes(0)
	if err != nil {
		return nil, wrapErr("recv", err, mapErrno(err))
	}
	return b, nil
}

func (s *zmqSocket) RecvMore() (bool, error) {
	more, err := s.sock.GetRcvmore()
	if err != nil {
		return false, wrapErr("rcvmore", err, mapErrno(err))
	}
	return more, nil
}

func (s *zmqSocket) Close() error {
	if err := s.sock.Close(); err != nil {
		return wrapErr("close", err, mapErrno(err))
	}
	return nil
}

// mapErrno classifies a zmq error; nil means no classification.
func mapErrno(err error) error {
	switch zmq4.AsErrno(err) {
	case zmq4.Errno(syscall.EAGAIN), zmq4.Errno(syscall.EINTR):
		return ErrTimeout
	case zmq4.ETERM, zmq4.Errno(syscall.ENOTSOCK):
		return ErrClosed
	default:
		return nil
	}
}
