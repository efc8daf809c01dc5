package gcs

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the station configuration. Interval fields are seconds.
type Config struct {
	Settings   Settings      `yaml:"settings"`
	Link       LinkConfig    `yaml:"link"`
	Mission    MissionConfig `yaml:"mission"`
	Parameters ParamConfig   `yaml:"parameters"`
	Storage    StorageConfig `yaml:"storage"`
	Stream     StreamConfig  `yaml:"stream"`
}

// Settings holds global station settings.
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// LinkConfig describes the vehicle link.
type LinkConfig struct {
	// Descriptor is either "udp:host:port" for a datagram listener or a
	// serial device path.
	Descriptor string `yaml:"descriptor"`

	// BaudRate applies to serial descriptors only.
	BaudRate int `yaml:"baudRate"`

	// HeartbeatTimeout is the liveness window in seconds.
	HeartbeatTimeout float64 `yaml:"heartbeatTimeout"`
}

// MissionConfig tunes mission persistence and the upload handshake.
type MissionConfig struct {
	Directory   string  `yaml:"directory"`
	StepTimeout float64 `yaml:"stepTimeout"` // seconds
	MaxRetries  int     `yaml:"maxRetries"`
}

// ParamConfig tunes the parameter fetch handshake.
type ParamConfig struct {
	IdleTimeout float64 `yaml:"idleTimeout"` // seconds
	MaxRetries  int     `yaml:"maxRetries"`
}

// StorageConfig enables the sqlite flight log.
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DataDirectory string `yaml:"dataDirectory"`
}

// StreamConfig enables the websocket telemetry feed.
type StreamConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the configuration used when fields are left unset.
func DefaultConfig() Config {
	return Config{
		Settings: Settings{LogLevel: "info"},
		Link: LinkConfig{
			Descriptor:       "udp:localhost:14550",
			BaudRate:         57600,
			HeartbeatTimeout: 3,
		},
		Mission: MissionConfig{
			Directory:   "missions",
			StepTimeout: 1.5,
			MaxRetries:  3,
		},
		Parameters: ParamConfig{
			IdleTimeout: 2,
			MaxRetries:  3,
		},
		Storage: StorageConfig{DataDirectory: "data"},
	}
}

// LoadConfig reads a yaml configuration file, applying defaults for unset
// fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	return &config, nil
}

func secondsOr(seconds float64, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds * float64(time.Second))
}
