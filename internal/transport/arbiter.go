package transport

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Arbiter owns one shared Context and counts its references.
type Arbiter struct {
	mu      sync.Mutex
	factory Factory
	ctx     Context
	refs    int
	created uint64
}

func NewArbiter(factory Factory) *Arbiter {
	return &Arbiter{factory: factory}
}

var (
	sharedOnce sync.Once
	shared     *Arbiter
)

// Shared returns the process-wide arbiter backed by ZeroMQ.
func Shared() *Arbiter {
	sharedOnce.Do(func() {
		shared = NewArbiter(NewZMQContext)
	})
	return shared
}

// Acquire takes a reference, creating the context if none exists.
func (a *Arbiter) Acquire() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acquireLocked()
}

// Release drops a reference. When destroy is set and no references remain,
// the context is terminated.
func (a *Arbiter) Release(destroy bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.releaseLocked(destroy)
}

// Open creates a socket from the shared context. The socket holds one
// reference until CloseSocket.
func (a *Arbiter) Open(opts SocketOptions) (Socket, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.acquireLocked(); err != nil {
		return nil, err
	}
	sock, err := a.ctx.NewSocket(opts)
	if err != nil {
		_ = a.releaseLocked(false)
		return nil, err
	}
	return sock, nil
}

// CloseSocket closes sock and drops its reference.
func (a *Arbiter) CloseSocket(sock Socket, destroy bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	closeErr := sock.Close()
	if err := a.releaseLocked(destroy); err != nil {
		return err
	}
	return closeErr
}

// Destroy terminates the context. It refuses while references remain.
func (a *Arbiter) Destroy() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.refs > 0 {
		return ErrContextInUse
	}
	return a.termLocked()
}

// Refs reports the live reference count.
func (a *Arbiter) Refs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refs
}

// Live reports whether a context currently exists.
func (a *Arbiter) Live() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx != nil
}

// Created counts contexts created over the arbiter's lifetime.
func (a *Arbiter) Created() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.created
}

func (a *Arbiter) acquireLocked() error {
	if a.ctx == nil {
		ctx, err := a.factory()
		if err != nil {
			return err
		}
		a.ctx = ctx
		a.created++
		log.Debug().Uint64("generation", a.created).Msg("transport.Arbiter context created")
	}
	a.refs++
	return nil
}

func (a *Arbiter) releaseLocked(destroy bool) error {
	if a.refs <= 0 {
		return ErrNotAcquired
	}
	a.refs--
	if a.refs == 0 && destroy {
		return a.termLocked()
	}
	return nil
}

func (a *Arbiter) termLocked() error {
	if a.ctx == nil {
		return nil
	}
	err := a.ctx.Term()
	a.ctx = nil
	log.Debug().Err(err).Uint64("generation", a.created).Msg("transport.Arbiter context destroyed")
	return err
}
