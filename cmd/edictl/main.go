// edictl binds the control-plane peer, waits for an edilink client to
// register, and sends it one command.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/danmuck/edilink/internal/config"
	"github.com/danmuck/edilink/internal/observability"
	"github.com/danmuck/edilink/internal/peer"
	"github.com/danmuck/edilink/internal/transport"
	"github.com/rs/zerolog/log"
)

const usage = `usage: edictl [flags] <command>

commands:
  acquisition on|off
  recording on|off
  path <prefix>
  info
  status
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "edictl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("edictl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	path := fs.String("config", "", "peer config file (toml)")
	bind := fs.String("bind", "", "bind endpoint, overrides config")
	client := fs.String("client", "", "client identity; defaults to the first registered client")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.DefaultPeer()
	if *path != "" {
		loaded, err := config.LoadPeerConfig(*path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *bind != "" {
		cfg.Bind = *bind
	}
	if err := config.ValidatePeerConfig(cfg); err != nil {
		return err
	}

	observability.InitLogger("edictl")

	arb := transport.Shared()
	p, err := peer.Bind(cfg.Bind, peer.Options{Arbiter: arb})
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn().Err(err).Msg("edictl peer close")
		}
		if err := arb.Destroy(); err != nil && !errors.Is(err, transport.ErrContextInUse) {
			log.Warn().Err(err).Msg("edictl transport teardown")
		}
	}()

	waitClient, waitReply, settle := cfg.Durations()
	return execute(p, fs.Args(), *client, waitClient, waitReply, settle, stdout)
}

// execute waits for a client that registered for the command, then sends it.
// Requests print their reply; plain commands print the command id.
func execute(p *peer.Peer, args []string, client string, waitClient, waitReply, settle time.Duration, stdout io.Writer) error {
	cmd, err := parseCommand(args, p.Header)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitClient)
	defer cancel()
	target, err := waitFor(ctx, p, client, cmd.Message.MessageType())
	if err != nil {
		return fmt.Errorf("no client registered for %s: %w", cmd.Message.MessageType(), err)
	}
	time.Sleep(settle)

	if cmd.ReplyID == "" {
		sendCtx, sendCancel := context.WithTimeout(context.Background(), waitReply)
		defer sendCancel()
		id, err := p.Send(sendCtx, target, cmd.Message)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "sent %s to %s (%s)\n", cmd.Message.MessageType(), target, id)
		return nil
	}

	reqCtx, reqCancel := context.WithTimeout(context.Background(), waitReply)
	defer reqCancel()
	reply, err := p.Request(reqCtx, target, cmd.Message, cmd.ReplyID)
	if err != nil {
		return err
	}
	text, err := formatReply(reply)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, text)
	return nil
}

func waitFor(ctx context.Context, p *peer.Peer, client, messageID string) (string, error) {
	if client == "" {
		c, err := p.WaitRegistered(ctx, messageID)
		return c.Identity, err
	}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		for _, c := range p.Clients() {
			if c.Identity == client && c.Registers(messageID) {
				return client, nil
			}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
