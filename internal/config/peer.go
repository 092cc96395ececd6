package config

import (
	"fmt"
	"strings"
	"time"
)

// PeerConfig configures the edictl control-plane peer.
type PeerConfig struct {
	Bind        string `toml:"bind"`
	WaitClient  string `toml:"wait_client"`
	WaitReply   string `toml:"wait_reply"`
	SettleDelay string `toml:"settle_delay"`
}

func DefaultPeer() PeerConfig {
	return PeerConfig{
		Bind:        "tcp://*:9928",
		WaitClient:  "10s",
		WaitReply:   "2s",
		SettleDelay: "200ms",
	}
}

func LoadPeerConfig(path string) (PeerConfig, error) {
	cfg := DefaultPeer()
	if err := loadToml(path, &cfg); err != nil {
		return PeerConfig{}, err
	}
	if err := ValidatePeerConfig(cfg); err != nil {
		return PeerConfig{}, err
	}
	return cfg, nil
}

func ValidatePeerConfig(cfg PeerConfig) error {
	if !strings.HasPrefix(strings.TrimSpace(cfg.Bind), "tcp://") {
		return fmt.Errorf("peer config bind must be a tcp:// endpoint")
	}
	for key, raw := range map[string]string{
		"wait_client":  cfg.WaitClient,
		"wait_reply":   cfg.WaitReply,
		"settle_delay": cfg.SettleDelay,
	} {
		if _, err := time.ParseDuration(strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("peer config %s: %w", key, err)
		}
	}
	return nil
}

// Durations parses the wait settings. Call after ValidatePeerConfig.
func (c PeerConfig) Durations() (waitClient, waitReply, settle time.Duration) {
	waitClient, _ = time.ParseDuration(strings.TrimSpace(c.WaitClient))
	waitReply, _ = time.ParseDuration(strings.TrimSpace(c.WaitReply))
	settle, _ = time.ParseDuration(strings.TrimSpace(c.SettleDelay))
	return waitClient, waitReply, settle
}
