package session

import (
	"time"

	"github.com/danmuck/edilink/internal/protocol"
	"github.com/danmuck/edilink/internal/protocol/frame"
)

// Config holds worker timings and identity. Zero fields take defaults. A
// negative settle, register or quiesce delay means no delay.
type Config struct {
	// Node labels metrics and logs. Defaults to the routing identity.
	Node string
	// Identity is the routing identity. Defaults to one derived from the
	// host name and process id.
	Identity string
	// Process is stamped into outbound headers.
	Process string

	SettleDelay      time.Duration
	RegisterInterval time.Duration
	PollInterval     time.Duration
	ReceiveTimeout   time.Duration
	StopTimeout      time.Duration
	QuiesceDelay     time.Duration

	Limits frame.Limits
}

// DefaultConfig returns the timings the control-plane peer expects.
func DefaultConfig() Config {
	return Config{
		Process:          protocol.DefaultProcess,
		SettleDelay:      500 * time.Millisecond,
		RegisterInterval: 20 * time.Millisecond,
		PollInterval:     100 * time.Millisecond,
		ReceiveTimeout:   100 * time.Millisecond,
		StopTimeout:      500 * time.Millisecond,
		QuiesceDelay:     300 * time.Millisecond,
		Limits:           frame.DefaultLimits(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Process == "" {
		c.Process = d.Process
	}
	c.SettleDelay = delayOrDefault(c.SettleDelay, d.SettleDelay)
	c.RegisterInterval = delayOrDefault(c.RegisterInterval, d.RegisterInterval)
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = d.ReceiveTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = d.StopTimeout
	}
	c.QuiesceDelay = delayOrDefault(c.QuiesceDelay, d.QuiesceDelay)
	if c.Limits.MaxPartBytes <= 0 {
		c.Limits = d.Limits
	}
	return c
}

func delayOrDefault(v, def time.Duration) time.Duration {
	switch {
	case v < 0:
		return 0
	case v == 0:
		return def
	default:
		return v
	}
}
