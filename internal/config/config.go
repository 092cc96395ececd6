package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/edilink/internal/logging"
	"github.com/danmuck/edilink/internal/protocol"
)

// NodeConfig is the edilink client configuration.
type NodeConfig struct {
	Name     string
	Endpoint Endpoint
	Process  string
	Identity string

	SettleDelay      time.Duration
	RegisterInterval time.Duration
	PollInterval     time.Duration
	ReceiveTimeout   time.Duration
	StopTimeout      time.Duration
	QuiesceDelay     time.Duration
	MaxMessageBytes  int

	AdminAddr     string
	AdminTLSCert  string
	AdminTLSKey   string
	CorsOrigins   []string
	RecordingRoot string
	EndpointFile  string
	// LogLevel overrides the logging profile when set.
	LogLevel string
}

type fileConfig struct {
	Name             string   `toml:"name"`
	URL              string   `toml:"url"`
	Port             int      `toml:"port"`
	Process          string   `toml:"process"`
	Identity         string   `toml:"identity"`
	SettleDelay      string   `toml:"settle_delay"`
	RegisterInterval string   `toml:"register_interval"`
	PollInterval     string   `toml:"poll_interval"`
	ReceiveTimeout   string   `toml:"receive_timeout"`
	StopTimeout      string   `toml:"stop_timeout"`
	QuiesceDelay     string   `toml:"quiesce_delay"`
	MaxMessageBytes  int      `toml:"max_message_bytes"`
	AdminAddr        string   `toml:"admin_addr"`
	AdminTLSCert     string   `toml:"admin_tls_cert"`
	AdminTLSKey      string   `toml:"admin_tls_key"`
	CorsOrigins      []string `toml:"cors_origins"`
	RecordingRoot    string   `toml:"recording_root"`
	EndpointFile     string   `toml:"endpoint_file"`
	LogLevel         string   `toml:"log_level"`
}

// DefaultNode returns the configuration used when no file is given.
func DefaultNode() NodeConfig {
	return NodeConfig{
		Name:             "edilink",
		Endpoint:         DefaultEndpoint(),
		Process:          protocol.DefaultProcess,
		SettleDelay:      500 * time.Millisecond,
		RegisterInterval: 20 * time.Millisecond,
		PollInterval:     100 * time.Millisecond,
		ReceiveTimeout:   100 * time.Millisecond,
		StopTimeout:      500 * time.Millisecond,
		QuiesceDelay:     300 * time.Millisecond,
		MaxMessageBytes:  protocol.MaxPartBytes,
	}
}

// LoadNode reads path over DefaultNode. Only keys present in the file
// override defaults.
func LoadNode(path string) (NodeConfig, error) {
	cfg := DefaultNode()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return NodeConfig{}, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("url") {
		cfg.Endpoint.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("port") {
		cfg.Endpoint.Port = raw.Port
	}
	if meta.IsDefined("process") {
		cfg.Process = strings.TrimSpace(raw.Process)
	}
	if meta.IsDefined("identity") {
		cfg.Identity = strings.TrimSpace(raw.Identity)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"settle_delay", raw.SettleDelay, &cfg.SettleDelay},
		{"register_interval", raw.RegisterInterval, &cfg.RegisterInterval},
		{"poll_interval", raw.PollInterval, &cfg.PollInterval},
		{"receive_timeout", raw.ReceiveTimeout, &cfg.ReceiveTimeout},
		{"stop_timeout", raw.StopTimeout, &cfg.StopTimeout},
		{"quiesce_delay", raw.QuiesceDelay, &cfg.QuiesceDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return NodeConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("max_message_bytes") {
		cfg.MaxMessageBytes = raw.MaxMessageBytes
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("admin_tls_cert") {
		cfg.AdminTLSCert = strings.TrimSpace(raw.AdminTLSCert)
	}
	if meta.IsDefined("admin_tls_key") {
		cfg.AdminTLSKey = strings.TrimSpace(raw.AdminTLSKey)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("recording_root") {
		cfg.RecordingRoot = strings.TrimSpace(raw.RecordingRoot)
	}
	if meta.IsDefined("endpoint_file") {
		cfg.EndpointFile = strings.TrimSpace(raw.EndpointFile)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if err := ValidateNode(cfg); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

func ValidateNode(cfg NodeConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("node config missing name")
	}
	if err := cfg.Endpoint.Validate(); err != nil {
		return err
	}
	if cfg.SettleDelay < 0 || cfg.RegisterInterval < 0 || cfg.QuiesceDelay < 0 {
		return fmt.Errorf("node config delays must not be negative")
	}
	if cfg.PollInterval <= 0 || cfg.ReceiveTimeout <= 0 || cfg.StopTimeout <= 0 {
		return fmt.Errorf("node config poll_interval, receive_timeout and stop_timeout must be positive")
	}
	if cfg.MaxMessageBytes <= 0 {
		return fmt.Errorf("node config max_message_bytes must be positive")
	}
	if (cfg.AdminTLSCert == "") != (cfg.AdminTLSKey == "") {
		return fmt.Errorf("node config admin_tls_cert and admin_tls_key must be set together")
	}
	if _, ok := logging.ParseLevel(cfg.LogLevel); cfg.LogLevel != "" && !ok {
		return fmt.Errorf("node config invalid log_level %q", cfg.LogLevel)
	}
	return nil
}
