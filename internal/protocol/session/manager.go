package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/edilink/internal/dispatch"
	"github.com/danmuck/edilink/internal/host"
	"github.com/danmuck/edilink/internal/protocol/schema"
	"github.com/danmuck/edilink/internal/transport"
	"github.com/rs/zerolog/log"
)

// Manager is the public entry point: start, stop and reconfigure a single
// session worker against one endpoint.
type Manager struct {
	cfg     Config
	arbiter *transport.Arbiter
	table   *dispatch.Table

	mu       sync.Mutex
	endpoint Endpoint
	worker   *worker
	last     *worker
	acquired bool
	closed   bool

	destroying atomic.Bool
	handshakes atomic.Int64
}

// Option customises a Manager.
type Option func(*Manager)

// WithArbiter replaces the process-wide transport arbiter.
func WithArbiter(a *transport.Arbiter) Option {
	return func(m *Manager) { m.arbiter = a }
}

// WithTable replaces the default dispatch table.
func WithTable(t *dispatch.Table) Option {
	return func(m *Manager) { m.table = t }
}

// NewManager builds a stopped manager. The dispatch table must route every
// registered message id.
func NewManager(cfg Config, ep Endpoint, h host.Host, opts ...Option) (*Manager, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if cfg.Identity == "" {
		cfg.Identity = transport.ProcessIdentity(h.ComputerName())
	}
	if cfg.Node == "" {
		cfg.Node = cfg.Identity
	}

	m := &Manager{cfg: cfg, endpoint: ep}
	for _, opt := range opts {
		opt(m)
	}
	if m.arbiter == nil {
		m.arbiter = transport.Shared()
	}
	if m.table == nil {
		m.table = dispatch.Default(h, cfg.Process)
	}
	if err := m.table.Covers(schema.Registrations()); err != nil {
		return nil, err
	}
	return m, nil
}

// Start launches a worker unless one is already running. A worker that
// failed to connect has already exited; Start replaces it. Connect failures
// are not reported here; observe Running or LastError.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked()
}

func (m *Manager) startLocked() error {
	if m.closed {
		return ErrClosed
	}
	if m.worker != nil {
		if !m.worker.exited() {
			log.Debug().Str("node", m.cfg.Node).Msg("session.Manager start ignored: worker running")
			return nil
		}
		m.worker = nil
	}
	if !m.acquired {
		if err := m.arbiter.Acquire(); err != nil {
			return fmt.Errorf("session: acquire transport: %w", err)
		}
		m.acquired = true
	}

	w := newWorker(m.cfg, m.endpoint, m.arbiter, m.table)
	w.destroying = m.destroying.Load
	w.handshake = func() { m.handshakes.Add(1) }
	w.start(context.Background())
	m.worker = w
	m.last = w
	log.Info().Str("node", m.cfg.Node).Str("endpoint", m.endpoint.Address()).Msg("session.Manager started")
	return nil
}

// Stop cancels the worker and waits up to StopTimeout for it to exit. On
// timeout the worker stays attached and ErrShutdownTimeout is returned.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked()
}

func (m *Manager) stopLocked() error {
	w := m.worker
	if w == nil {
		return nil
	}
	w.cancel()
	if !w.wait(m.cfg.StopTimeout) {
		log.Warn().
			Str("node", m.cfg.Node).
			Dur("timeout", m.cfg.StopTimeout).
			Stringer("state", w.State()).
			Msg("session.Manager stop timed out")
		return fmt.Errorf("%w after %v", ErrShutdownTimeout, m.cfg.StopTimeout)
	}
	m.worker = nil
	log.Info().Str("node", m.cfg.Node).Msg("session.Manager stopped")
	return nil
}

// Reconfigure stops the worker and, only if it stopped cleanly, switches to
// ep and starts again. On failure the current endpoint is returned
// unchanged along with the error.
func (m *Manager) Reconfigure(ep Endpoint) (Endpoint, error) {
	if err := ep.Validate(); err != nil {
		return m.Endpoint(), err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return m.endpoint, ErrClosed
	}
	if err := m.stopLocked(); err != nil {
		return m.endpoint, err
	}
	time.Sleep(m.cfg.QuiesceDelay)

	prev := m.endpoint
	m.endpoint = ep
	log.Info().
		Str("node", m.cfg.Node).
		Str("from", prev.Address()).
		Str("to", ep.Address()).
		Msg("session.Manager reconfigured")
	if err := m.startLocked(); err != nil {
		return m.endpoint, err
	}
	return m.endpoint, nil
}

// Abandon detaches a worker that ignored its stop deadline. The worker
// keeps its socket and context reference until it finally exits.
func (m *Manager) Abandon() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.abandonLocked()
}

func (m *Manager) abandonLocked() bool {
	w := m.worker
	if w == nil {
		return false
	}
	w.cancel()
	m.worker = nil
	log.Error().
		Str("node", m.cfg.Node).
		Stringer("state", w.State()).
		Msg("session.Manager forced worker detach")
	return true
}

// Close stops the worker and drops the manager's context reference with
// destroy set, so the shared context ends with its last user. A worker that
// will not stop is abandoned and Close still completes.
func (m *Manager) Close() error {
	m.destroying.Store(true)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	stopErr := m.stopLocked()
	if stopErr != nil {
		m.abandonLocked()
	}
	m.closed = true
	if m.acquired {
		m.acquired = false
		if err := m.arbiter.Release(true); err != nil {
			return fmt.Errorf("session: release transport: %w", err)
		}
	}
	return stopErr
}

// State reports the current worker's state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.worker != nil:
		return m.worker.State()
	case m.closed:
		return StateClosed
	default:
		return StateDisconnected
	}
}

// Running reports whether a worker is attached and has not exited.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.worker != nil && !m.worker.exited()
}

// LastError returns the exit error of the most recent worker, if it exited.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil || !m.last.exited() {
		return nil
	}
	return m.last.err
}

func (m *Manager) Endpoint() Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoint
}

func (m *Manager) ListeningPort() int { return m.Endpoint().Port }

func (m *Manager) ListeningURL() string { return m.Endpoint().URL }

// Registrations counts completed registration handshakes.
func (m *Manager) Registrations() int64 { return m.handshakes.Load() }

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }
