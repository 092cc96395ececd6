package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/danmuck/edilink/internal/dispatch"
	"github.com/danmuck/edilink/internal/observability"
	"github.com/danmuck/edilink/internal/protocol"
	"github.com/danmuck/edilink/internal/protocol/codec"
	"github.com/danmuck/edilink/internal/protocol/frame"
	"github.com/danmuck/edilink/internal/protocol/schema"
	"github.com/danmuck/edilink/internal/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// worker is one connection attempt and its listen loop. It is never reused.
type worker struct {
	cfg      Config
	endpoint Endpoint
	arbiter  *transport.Arbiter
	table    *dispatch.Table

	// destroying reports whether the owning manager is tearing down, in which
	// case the worker's socket release may terminate the shared context.
	destroying func() bool
	// handshake is called once all registrations are sent.
	handshake func()

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	logger zerolog.Logger
}

func newWorker(cfg Config, ep Endpoint, arbiter *transport.Arbiter, table *dispatch.Table) *worker {
	return &worker{
		cfg:      cfg,
		endpoint: ep,
		arbiter:  arbiter,
		table:    table,
		done:     make(chan struct{}),
		logger: log.With().
			Str("node", cfg.Node).
			Str("endpoint", ep.Address()).
			Logger(),
	}
}

func (w *worker) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel
	go func() {
		defer close(w.done)
		defer cancel()
		w.err = w.run(ctx)
	}()
}

func (w *worker) State() State {
	return State(w.state.Load())
}

func (w *worker) exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// wait blocks until the worker exits or timeout elapses.
func (w *worker) wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-w.done:
		return true
	case <-t.C:
		return false
	}
}

func (w *worker) setState(s State) {
	prev := State(w.state.Swap(int32(s)))
	observability.SetSessionState(w.cfg.Node, int(s))
	w.logger.Debug().Stringer("from", prev).Stringer("state", s).Msg("session.worker state")
}

func (w *worker) run(ctx context.Context) error {
	w.setState(StateConnecting)
	sock, err := w.arbiter.Open(transport.SocketOptions{
		Identity:       w.cfg.Identity,
		ReceiveTimeout: w.cfg.ReceiveTimeout,
		ProbeRouter:    true,
		Linger:         0,
	})
	if err != nil {
		defer w.setState(StateClosed)
		return w.connectFailed(fmt.Errorf("%w: open socket: %w", ErrConnect, err))
	}
	defer w.closeSocket(sock)

	if err := sock.Connect(w.endpoint.Address()); err != nil {
		return w.connectFailed(fmt.Errorf("%w: %s: %w", ErrConnect, w.endpoint.Address(), err))
	}
	w.logger.Info().Str("identity", w.cfg.Identity).Msg("session.worker connected")

	w.setState(StateRegistering)
	if !sleepCtx(ctx, w.cfg.SettleDelay) {
		return nil
	}
	if err := w.register(ctx, sock); err != nil {
		return err
	}

	w.setState(StateListening)
	return w.listen(ctx, sock)
}

func (w *worker) connectFailed(err error) error {
	observability.RecordConnectFailure(w.cfg.Node)
	w.logger.Error().Err(err).Msg("session.worker connect failed")
	return err
}

// register announces every registration id in order. A cancelled context
// ends the handshake early without error.
func (w *worker) register(ctx context.Context, sock transport.Socket) error {
	ids := schema.Registrations()
	for _, id := range ids {
		msg := codec.RegisterForMessage{
			Header:    w.table.Stamp(schema.MsgRegisterForMessage),
			MessageID: id,
		}
		env := frame.Outbound(msg.MessageType(), msg.Marshal())
		if err := frame.SendEnvelope(sock, env); err != nil {
			w.logger.Warn().Err(err).Str("message_id", id).Msg("session.worker registration send failed")
			if transport.IsTerminal(err) {
				return err
			}
			continue
		}
		observability.RecordRegistration(w.cfg.Node)
		w.logger.Debug().Str("message_id", id).Msg("session.worker registered")
		if !sleepCtx(ctx, w.cfg.RegisterInterval) {
			return nil
		}
	}
	if w.handshake != nil {
		w.handshake()
	}
	w.logger.Info().Int("count", len(ids)).Msg("session.worker registration complete")
	return nil
}

func (w *worker) listen(ctx context.Context, sock transport.Socket) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		ready, err := sock.Poll(w.cfg.PollInterval)
		if err != nil {
			if transport.IsTerminal(err) {
				w.logger.Warn().Err(err).Msg("session.worker transport closed")
				return err
			}
			w.logger.Debug().Err(err).Msg("session.worker poll")
			continue
		}
		if !ready {
			continue
		}
		if err := w.serveOne(sock); err != nil {
			return err
		}
	}
}

// serveOne receives and dispatches one envelope. Only a terminal transport
// error is returned; everything else is logged and absorbed.
func (w *worker) serveOne(sock transport.Socket) error {
	env, err := frame.ReceiveEnvelope(sock, w.cfg.Limits)
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrFramingViolation):
		observability.RecordFramingViolation(w.cfg.Node)
		w.logger.Warn().Err(err).Msg("session.worker dropped envelope")
		return nil
	case transport.IsTerminal(err):
		return err
	default:
		w.logger.Debug().Err(err).Msg("session.worker receive")
		return nil
	}

	label := w.table.Label(env.MessageID)
	observability.RecordMessageReceived(w.cfg.Node, label)
	out, reply, err := w.table.Dispatch(env)
	if err != nil {
		if errors.Is(err, protocol.ErrDecode) {
			observability.RecordDecodeError(w.cfg.Node, label)
		}
		return nil
	}
	if !reply {
		return nil
	}
	if err := frame.SendEnvelope(sock, out); err != nil {
		w.logger.Warn().Err(err).Str("message_id", out.MessageID).Msg("session.worker reply failed")
		if transport.IsTerminal(err) {
			return err
		}
		return nil
	}
	observability.RecordResponseSent(w.cfg.Node, out.MessageID)
	return nil
}

func (w *worker) closeSocket(sock transport.Socket) {
	if w.State() != StateConnecting {
		w.setState(StateStopping)
	}
	destroy := w.destroying != nil && w.destroying()
	if err := w.arbiter.CloseSocket(sock, destroy); err != nil {
		w.logger.Warn().Err(err).Bool("destroy", destroy).Msg("session.worker socket close")
	}
	w.setState(StateClosed)
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
