package config

import "fmt"

var validBandwidths = map[string]bool{"highest": true, "lowest": true, "audio_only": true}
var validColorFormats = map[string]bool{"bgra": true, "uyvy": true, "fastest": true, "best": true}

// Validate checks the configuration for internal consistency.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}

	if !validBandwidths[cfg.Receiver.Bandwidth] {
		return fmt.Errorf("receiver.bandwidth must be one of highest|lowest|audio_only, got %q", cfg.Receiver.Bandwidth)
	}
	if !validColorFormats[cfg.Receiver.ColorFormat] {
		return fmt.Errorf("receiver.color_format must be one of bgra|uyvy|fastest|best, got %q", cfg.Receiver.ColorFormat)
	}

	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt.enabled is true")
	}

	return nil
}
