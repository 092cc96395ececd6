package node

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/edilink/internal/config"
	"github.com/danmuck/edilink/internal/protocol/session"
	"github.com/danmuck/edilink/internal/testutil/fakezmq"
	"github.com/danmuck/edilink/internal/testutil/testlog"
	"github.com/danmuck/edilink/internal/transport"
)

func testNodeConfig(t *testing.T) config.NodeConfig {
	t.Helper()
	cfg := config.DefaultNode()
	cfg.Name = "node-test"
	cfg.Identity = "OpenEphys_node_1"
	cfg.SettleDelay = 5 * time.Millisecond
	cfg.RegisterInterval = time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ReceiveTimeout = 10 * time.Millisecond
	cfg.QuiesceDelay = 5 * time.Millisecond
	cfg.EndpointFile = filepath.Join(t.TempDir(), "endpoint.toml")
	return cfg
}

func serve(t *testing.T, n *Node) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Serve(ctx) }()
	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatalf("serve did not return")
			return nil
		}
	}
}

func TestServeUsesConfiguredEndpointWithoutPersistedFile(t *testing.T) {
	testlog.Start(t)
	netw := fakezmq.NewNetwork()
	arb := transport.NewArbiter(netw.Factory())
	cfg := testNodeConfig(t)

	n, err := New(cfg, session.WithArbiter(arb))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	stop := serve(t, n)

	sock, err := netw.NextSocket(2 * time.Second)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	if _, err := sock.WaitSent(2 * time.Second); err != nil {
		t.Fatalf("registration: %v", err)
	}
	want := transport.Endpoint(cfg.Endpoint.URL, cfg.Endpoint.Port)
	if got := sock.Endpoint(); got != want {
		t.Fatalf("connected to %q, want %q", got, want)
	}

	if err := stop(); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if !sock.Closed() {
		t.Fatalf("socket left open after serve")
	}
	if arb.Refs() != 0 || arb.Live() {
		t.Fatalf("arbiter refs=%d live=%v after close", arb.Refs(), arb.Live())
	}
}

func TestServePrefersPersistedEndpoint(t *testing.T) {
	testlog.Start(t)
	netw := fakezmq.NewNetwork()
	arb := transport.NewArbiter(netw.Factory())
	cfg := testNodeConfig(t)
	persisted := config.Endpoint{URL: "10.0.0.7", Port: 9931}
	if err := config.SaveEndpoint(cfg.EndpointFile, persisted); err != nil {
		t.Fatalf("save: %v", err)
	}

	n, err := New(cfg, session.WithArbiter(arb))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	stop := serve(t, n)
	defer func() { _ = stop() }()

	sock, err := netw.NextSocket(2 * time.Second)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	if _, err := sock.WaitSent(2 * time.Second); err != nil {
		t.Fatalf("registration: %v", err)
	}
	if got, want := sock.Endpoint(), transport.Endpoint("10.0.0.7", 9931); got != want {
		t.Fatalf("connected to %q, want %q", got, want)
	}
	if got := n.Manager().Endpoint(); got.Port != 9931 {
		t.Fatalf("manager endpoint = %+v", got)
	}
}

func TestServeIgnoresIncompletePersistedEndpoint(t *testing.T) {
	testlog.Start(t)
	netw := fakezmq.NewNetwork()
	arb := transport.NewArbiter(netw.Factory())
	cfg := testNodeConfig(t)
	if err := os.WriteFile(cfg.EndpointFile, []byte("url = \"10.0.0.7\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	n, err := New(cfg, session.WithArbiter(arb))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	stop := serve(t, n)
	defer func() { _ = stop() }()

	sock, err := netw.NextSocket(2 * time.Second)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	if _, err := sock.WaitSent(2 * time.Second); err != nil {
		t.Fatalf("registration: %v", err)
	}
	if got, want := sock.Endpoint(), transport.Endpoint(cfg.Endpoint.URL, cfg.Endpoint.Port); got != want {
		t.Fatalf("connected to %q, want %q", got, want)
	}
}

func TestPersistEndpointWritesFile(t *testing.T) {
	testlog.Start(t)
	cfg := testNodeConfig(t)
	n, err := New(cfg, session.WithArbiter(transport.NewArbiter(fakezmq.NewNetwork().Factory())))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer n.close()

	if err := n.persistEndpoint(session.Endpoint{URL: "192.168.1.4", Port: 9000}); err != nil {
		t.Fatalf("persist: %v", err)
	}
	got, err := config.LoadEndpoint(cfg.EndpointFile)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.URL != "192.168.1.4" || got.Port != 9000 {
		t.Fatalf("persisted = %+v", got)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	testlog.Start(t)
	cfg := testNodeConfig(t)
	cfg.Endpoint.Port = 0
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestServeIgnoresPersistedEndpointWithScheme(t *testing.T) {
	testlog.Start(t)
	netw := fakezmq.NewNetwork()
	arb := transport.NewArbiter(netw.Factory())
	cfg := testNodeConfig(t)
	if err := os.WriteFile(cfg.EndpointFile, []byte("url = \"tcp://10.0.0.7\"\nport = 9931\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	n, err := New(cfg, session.WithArbiter(arb))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	stop := serve(t, n)

	sock, err := netw.NextSocket(2 * time.Second)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	if _, err := sock.WaitSent(2 * time.Second); err != nil {
		t.Fatalf("registration: %v", err)
	}
	if got, want := sock.Endpoint(), transport.Endpoint(cfg.Endpoint.URL, cfg.Endpoint.Port); got != want {
		t.Fatalf("connected to %q, want %q", got, want)
	}
	if err := stop(); err != nil {
		t.Fatalf("serve: %v", err)
	}
}
