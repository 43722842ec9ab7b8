package bootconfig

import "fmt"

// validate checks a loaded Config for internally inconsistent values
// that would otherwise surface as confusing runtime errors.
func validate(cfg *Config) error {
	if cfg.Store.Dir == "" {
		return fmt.Errorf("store.dir is required")
	}

	if cfg.FaceDB.FeatureSize <= 0 {
		return fmt.Errorf("facedb.feature_size must be positive")
	}

	if cfg.Dashboard.Enabled {
		if cfg.Dashboard.Port <= 0 || cfg.Dashboard.Port > 65535 {
			return fmt.Errorf("dashboard.port must be between 1 and 65535")
		}
		if cfg.Dashboard.AuthRequired && cfg.Dashboard.Username == "" {
			return fmt.Errorf("dashboard.username is required when auth_required is set")
		}
	}

	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be between 1 and 65535")
		}
		if cfg.Metrics.Path == "" {
			return fmt.Errorf("metrics.path is required when metrics is enabled")
		}
	}

	if cfg.Multicore.Enabled && cfg.Multicore.Listen == "" && cfg.Multicore.Peer == "" {
		return fmt.Errorf("multicore.listen or multicore.peer is required when multicore is enabled")
	}

	return nil
}
