// Package config loads the ingest node's YAML configuration: the
// preferences store of spec.md §6 (auto-reconnect, OSD, last-connected
// source) plus the finder/receiver/recordings/MQTT settings an embedding
// process needs to wire the core up.
//
// Grounded on References/orion-prototipe/internal/config's Load/Validate
// split, using the same gopkg.in/yaml.v3 decoding.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete ingest node configuration.
type Config struct {
	InstanceID string           `yaml:"instance_id"`
	Finder     FinderConfig     `yaml:"finder"`
	Receiver   ReceiverConfig   `yaml:"receiver"`
	Recordings RecordingsConfig `yaml:"recordings"`
	Preferences PreferencesConfig `yaml:"preferences"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
}

// FinderConfig mirrors the native createFinder parameters of spec.md §6.
type FinderConfig struct {
	ShowLocal bool     `yaml:"show_local"`
	Groups    string   `yaml:"groups"`
	ExtraIPs  []string `yaml:"extra_ips"`
}

// ReceiverConfig mirrors the native createReceiver parameters.
type ReceiverConfig struct {
	Name             string `yaml:"name"`
	Bandwidth        string `yaml:"bandwidth"`         // "highest" | "lowest" | "audio_only"
	ColorFormat      string `yaml:"color_format"`      // "bgra" | "uyvy" | "fastest" | "best"
	AllowVideoFields bool   `yaml:"allow_video_fields"`
}

// RecordingsConfig configures the recorder's on-disk layout.
type RecordingsConfig struct {
	Dir string `yaml:"dir"`
}

// PreferencesConfig is the typed key/value preferences store of spec.md
// §6, flattened into config for this deployment (an embedding UI would
// normally own live mutation of these; this is their boot-time default).
type PreferencesConfig struct {
	AutoReconnect   bool   `yaml:"auto_reconnect"`
	ScreenAlwaysOn  bool   `yaml:"screen_always_on"`
	ShowOSD         bool   `yaml:"show_osd"`
	LastSourceName  string `yaml:"last_source_name"`
	LastSourceURL   string `yaml:"last_source_url"`
}

// MQTTConfig configures the optional health/control-plane publisher.
type MQTTConfig struct {
	Enabled bool       `yaml:"enabled"`
	Broker  string     `yaml:"broker"`
	Topics  MQTTTopics `yaml:"topics"`
}

// MQTTTopics holds topic templates for the health/control publisher.
type MQTTTopics struct {
	Health  string `yaml:"health"`
	Control string `yaml:"control"`
}

// Load reads and parses a YAML configuration file, applying defaults and
// validating the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg back to path as YAML, used to persist the
// preferences store's mutable fields (spec.md §6's last_source_name/
// last_source_url and auto_reconnect) across restarts.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write file: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Receiver.Name == "" {
		cfg.Receiver.Name = "ndicore"
	}
	if cfg.Receiver.Bandwidth == "" {
		cfg.Receiver.Bandwidth = "highest"
	}
	if cfg.Receiver.ColorFormat == "" {
		cfg.Receiver.ColorFormat = "bgra"
	}
	if cfg.Recordings.Dir == "" {
		cfg.Recordings.Dir = "recordings"
	}
	if cfg.MQTT.Enabled {
		if cfg.MQTT.Topics.Health == "" {
			cfg.MQTT.Topics.Health = fmt.Sprintf("ndicore/health/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Control == "" {
			cfg.MQTT.Topics.Control = fmt.Sprintf("ndicore/control/%s", cfg.InstanceID)
		}
	}
}
