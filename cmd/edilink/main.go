package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/danmuck/edilink/internal/config"
	"github.com/danmuck/edilink/internal/logging"
	"github.com/danmuck/edilink/internal/node"
	"github.com/danmuck/edilink/internal/observability"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "edilink: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stderr io.Writer) error {
	cfg, err := parseConfig(args, stderr)
	if err != nil {
		return err
	}
	observability.InitLogger("edilink")
	applyLogLevel(cfg)

	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	runErr := n.Run()
	if err := node.DestroyShared(); err != nil {
		log.Warn().Err(err).Msg("edilink transport teardown")
	}
	return runErr
}

// applyLogLevel keeps the profile level, including EDILINK_LOG_LEVEL, unless
// the config or a flag names one.
func applyLogLevel(cfg config.NodeConfig) {
	if cfg.LogLevel == "" {
		return
	}
	logging.SetLevel(cfg.LogLevel)
}

// parseConfig resolves the node config from an optional file, then applies
// flag overrides.
func parseConfig(args []string, stderr io.Writer) (config.NodeConfig, error) {
	fs := flag.NewFlagSet("edilink", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("config", "", "node config file (toml)")
	url := fs.String("url", "", "peer host, overrides config")
	port := fs.Int("port", 0, "peer port, overrides config")
	admin := fs.String("admin", "", "admin listen address, overrides config")
	level := fs.String("log-level", "", "log level, overrides config")
	if err := fs.Parse(args); err != nil {
		return config.NodeConfig{}, err
	}

	cfg := config.DefaultNode()
	if *path != "" {
		loaded, err := config.LoadNode(*path)
		if err != nil {
			return config.NodeConfig{}, err
		}
		cfg = loaded
	}
	if *url != "" {
		cfg.Endpoint.URL = *url
	}
	if *port != 0 {
		cfg.Endpoint.Port = *port
	}
	if *admin != "" {
		cfg.AdminAddr = *admin
	}
	if *level != "" {
		cfg.LogLevel = *level
	}
	return cfg, config.ValidateNode(cfg)
}
