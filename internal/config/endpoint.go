package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

var ErrEndpointIncomplete = errors.New("config: endpoint file needs url and port")

// Endpoint is the persisted peer address: exactly the url and port
// attributes.
type Endpoint struct {
	URL  string `toml:"url"`
	Port int    `toml:"port"`
}

func DefaultEndpoint() Endpoint {
	return Endpoint{URL: "127.0.0.1", Port: 9928}
}

// Validate applies the session engine's endpoint rules, so a persisted
// endpoint that loads is one Reconfigure accepts.
func (e Endpoint) Validate() error {
	return e.Session().Validate()
}

// SaveEndpoint writes ep to path, replacing any previous file atomically.
func SaveEndpoint(path string, ep Endpoint) error {
	if err := ep.Validate(); err != nil {
		return err
	}
	data, err := toml.Marshal(ep)
	if err != nil {
		return fmt.Errorf("config encode endpoint: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".endpoint-*.toml")
	if err != nil {
		return fmt.Errorf("config save endpoint (%s): %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("config save endpoint (%s): %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config save endpoint (%s): %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("config save endpoint (%s): %w", path, err)
	}
	return nil
}

// LoadEndpoint reads an endpoint written by SaveEndpoint.
func LoadEndpoint(path string) (Endpoint, error) {
	var raw struct {
		URL  *string `toml:"url"`
		Port *int    `toml:"port"`
	}
	if err := loadToml(path, &raw); err != nil {
		return Endpoint{}, err
	}
	if raw.URL == nil || raw.Port == nil {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrEndpointIncomplete, path)
	}
	ep := Endpoint{URL: strings.TrimSpace(*raw.URL), Port: *raw.Port}
	if err := ep.Validate(); err != nil {
		return Endpoint{}, err
	}
	return ep, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}
