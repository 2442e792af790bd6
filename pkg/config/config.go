package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration for a deskstream session endpoint.
type Config struct {
	// Network configuration for the UDP socket.
	Network NetworkConfig `json:"network" yaml:"network"`

	// DTLS configuration for the encrypted channel.
	DTLS DTLSConfig `json:"dtls" yaml:"dtls"`

	// Transport configuration (retransmit cache, MTU ceiling).
	Transport TransportConfig `json:"transport" yaml:"transport"`

	// Clipboard configuration (polling, debounce, retry).
	Clipboard ClipboardConfig `json:"clipboard" yaml:"clipboard"`

	// Gamepad configuration (slot count).
	Gamepad GamepadConfig `json:"gamepad" yaml:"gamepad"`

	// Logging configuration.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// NetworkConfig holds socket bind/peer configuration.
type NetworkConfig struct {
	// ListenAddr is the local UDP address to bind, e.g. "0.0.0.0:47998".
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`

	// HandshakeTimeout bounds how long the host waits for the viewer's first
	// datagram. The DTLS handshake that follows is not bounded by it.
	HandshakeTimeout time.Duration `json:"handshake_timeout" yaml:"handshake_timeout"`
}

// DTLSConfig holds certificate paths for the server-role DTLS handshake.
type DTLSConfig struct {
	// CertFile is the path to the PEM-encoded certificate.
	CertFile string `json:"cert_file" yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded private key.
	KeyFile string `json:"key_file" yaml:"key_file"`

	// InsecureSkipVerify disables peer certificate verification (testing only).
	InsecureSkipVerify bool `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// TransportConfig tunes the UDP transport.
type TransportConfig struct {
	// CacheSize is the number of slots in the retransmit ring buffer.
	// The wire protocol fixes this at 512; overriding it changes the
	// retransmit window, not the wire format.
	CacheSize int `json:"cache_size" yaml:"cache_size"`

	// MaxDatagramBytes is the pre-encryption MTU ceiling enforced by callers.
	MaxDatagramBytes int `json:"max_datagram_bytes" yaml:"max_datagram_bytes"`
}

// ClipboardConfig tunes the clipboard sync worker.
type ClipboardConfig struct {
	// PollInterval is how often the monitor thread checks the OS clipboard.
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// DebounceInterval collapses back-to-back local edits.
	DebounceInterval time.Duration `json:"debounce_interval" yaml:"debounce_interval"`

	// RetryInterval is the delay between unacknowledged retransmits.
	RetryInterval time.Duration `json:"retry_interval" yaml:"retry_interval"`

	// MaxRetries is the number of retransmits before giving up.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// MaxPayloadBytes is the maximum clipboard text size.
	MaxPayloadBytes int `json:"max_payload_bytes" yaml:"max_payload_bytes"`
}

// GamepadConfig tunes controller ingest.
type GamepadConfig struct {
	// MaxControllers is the number of simultaneous controller slots (XInput
	// limit). gamepad.Ingest does not read it: its slot count is fixed at
	// gamepad.MaxControllers (4).
	MaxControllers int `json:"max_controllers" yaml:"max_controllers"`
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `json:"level" yaml:"level"`

	// Format is the log format (json, text).
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns a default configuration matching the wire protocol's
// fixed constants (512-slot cache, 1400-byte MTU, 200ms clipboard cadence,
// 3 retries, 4 gamepad slots).
func DefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			ListenAddr:       "0.0.0.0:47998",
			HandshakeTimeout: 10 * time.Second,
		},
		DTLS: DTLSConfig{
			InsecureSkipVerify: false,
		},
		Transport: TransportConfig{
			CacheSize:        512,
			MaxDatagramBytes: 1400,
		},
		Clipboard: ClipboardConfig{
			PollInterval:     200 * time.Millisecond,
			DebounceInterval: 200 * time.Millisecond,
			RetryInterval:    200 * time.Millisecond,
			MaxRetries:       3,
			MaxPayloadBytes:  65536,
		},
		Gamepad: GamepadConfig{
			MaxControllers: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file, starting from DefaultConfig and
// overriding only the fields present in the file.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func Save(cfg *Config, filename string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
