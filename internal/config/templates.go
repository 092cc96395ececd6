package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "node":
		return nodeTemplate, nil
	case "peer":
		return peerTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const nodeTemplate = `name = "edilink"
url = "127.0.0.1"
port = 9928
process = "Open_Ephys"

settle_delay = "500ms"
register_interval = "20ms"
poll_interval = "100ms"
receive_timeout = "100ms"
stop_timeout = "500ms"
quiesce_delay = "300ms"
max_message_bytes = 64000

admin_addr = "127.0.0.1:9930"
# admin_tls_cert = "admin.crt"
# admin_tls_key = "admin.key"
cors_origins = ["http://localhost:3000"]
recording_root = "recordings"
endpoint_file = "endpoint.toml"
# log_level = "info"
`

const peerTemplate = `bind = "tcp://*:9928"
wait_client = "10s"
wait_reply = "2s"
settle_delay = "200ms"
`
