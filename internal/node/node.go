// Package node wires the edilink runtime: in-process host, session manager,
// endpoint persistence and the optional admin surface.
package node

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/edilink/internal/admin"
	"github.com/danmuck/edilink/internal/config"
	"github.com/danmuck/edilink/internal/host"
	"github.com/danmuck/edilink/internal/protocol/session"
	"github.com/danmuck/edilink/internal/transport"
	"github.com/rs/zerolog/log"
)

type Node struct {
	cfg   config.NodeConfig
	host  *host.Memory
	mgr   *session.Manager
	admin *admin.Server
}

// New builds a stopped node. opts are passed to the session manager.
func New(cfg config.NodeConfig, opts ...session.Option) (*Node, error) {
	if err := config.ValidateNode(cfg); err != nil {
		return nil, err
	}
	mem := host.NewMemory(cfg.RecordingRoot)
	mgr, err := session.NewManager(cfg.Session(), cfg.Endpoint.Session(), mem, opts...)
	if err != nil {
		return nil, err
	}
	n := &Node{cfg: cfg, host: mem, mgr: mgr}
	if cfg.AdminAddr != "" {
		n.admin = admin.Appear(cfg.Name, cfg.AdminAddr, cfg.CorsOrigins, mgr, mem)
		n.admin.OnReconfigure = n.persistEndpoint
		n.admin.TLS = admin.TLSFiles{CertFile: cfg.AdminTLSCert, KeyFile: cfg.AdminTLSKey}
	}
	return n, nil
}

func (n *Node) Manager() *session.Manager { return n.mgr }

func (n *Node) Host() *host.Memory { return n.host }

// Run boots the node and serves until SIGINT or SIGTERM.
func (n *Node) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return n.Serve(ctx)
}

// Serve boots the node and blocks until ctx ends or the admin server fails.
// The manager is always closed on return.
func (n *Node) Serve(ctx context.Context) error {
	defer n.close()

	adminErr := make(chan error, 1)
	if n.admin != nil {
		go func() { adminErr <- n.admin.Serve() }()
	}
	if err := n.boot(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		log.Info().Str("node", n.cfg.Name).Msg("node.Serve shutdown requested")
		return nil
	case err := <-adminErr:
		if err != nil {
			return fmt.Errorf("admin: %w", err)
		}
		<-ctx.Done()
		return nil
	}
}

// boot starts the engine, preferring a persisted endpoint. A persisted
// endpoint goes through Reconfigure like an operator edit would.
func (n *Node) boot() error {
	ep, ok, err := n.loadPersisted()
	if err != nil {
		log.Warn().Err(err).Str("file", n.cfg.EndpointFile).Msg("node.boot ignoring persisted endpoint")
	}
	if ok {
		if _, err := n.mgr.Reconfigure(ep.Session()); err != nil {
			return fmt.Errorf("apply persisted endpoint: %w", err)
		}
	} else if err := n.mgr.Start(); err != nil {
		return err
	}
	log.Info().
		Str("node", n.cfg.Name).
		Str("endpoint", n.mgr.Endpoint().Address()).
		Str("admin", n.cfg.AdminAddr).
		Msg("node.boot ready")
	return nil
}

func (n *Node) loadPersisted() (config.Endpoint, bool, error) {
	if n.cfg.EndpointFile == "" {
		return config.Endpoint{}, false, nil
	}
	ep, err := config.LoadEndpoint(n.cfg.EndpointFile)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Endpoint{}, false, nil
	}
	if err != nil {
		return config.Endpoint{}, false, err
	}
	return ep, true, nil
}

func (n *Node) persistEndpoint(ep session.Endpoint) error {
	if n.cfg.EndpointFile == "" {
		return nil
	}
	return config.SaveEndpoint(n.cfg.EndpointFile, config.FromSession(ep))
}

func (n *Node) close() {
	if n.admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := n.admin.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("node admin shutdown")
		}
		cancel()
	}
	if err := n.mgr.Close(); err != nil {
		log.Error().Err(err).Str("node", n.cfg.Name).Msg("node close forced")
	}
}

// DestroyShared tears down the process-wide transport context after every
// node has closed.
func DestroyShared() error {
	if err := transport.Shared().Destroy(); err != nil && !errors.Is(err, transport.ErrContextInUse) {
		return err
	}
	return nil
}
