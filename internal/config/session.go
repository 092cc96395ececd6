package config

import (
	"github.com/danmuck/edilink/internal/protocol/frame"
	"github.com/danmuck/edilink/internal/protocol/session"
)

// Session maps the node settings onto the session engine.
func (c NodeConfig) Session() session.Config {
	return session.Config{
		Node:             c.Name,
		Identity:         c.Identity,
		Process:          c.Process,
		SettleDelay:      c.SettleDelay,
		RegisterInterval: c.RegisterInterval,
		PollInterval:     c.PollInterval,
		ReceiveTimeout:   c.ReceiveTimeout,
		StopTimeout:      c.StopTimeout,
		QuiesceDelay:     c.QuiesceDelay,
		Limits:           frame.Limits{MaxPartBytes: c.MaxMessageBytes},
	}
}

func (e Endpoint) Session() session.Endpoint {
	return session.Endpoint{URL: e.URL, Port: e.Port}
}

func FromSession(ep session.Endpoint) Endpoint {
	return Endpoint{URL: ep.URL, Port: ep.Port}
}
