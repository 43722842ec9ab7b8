// Package bootconfig loads the process-level deployment configuration
// (where the on-device config store lives, which transports are
// enabled, how verbose to log) from a YAML file, environment
// variables, and built-in defaults. It is distinct from pkg/fwkconfig,
// which persists the on-device framework/app settings the running
// appliance itself reads and writes.
package bootconfig

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config is the top-level deployment configuration for an appliance
// process (simulator or bridge).
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	FaceDB   FaceDBConfig   `mapstructure:"facedb"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Multicore MulticoreConfig `mapstructure:"multicore"`
}

// ServerConfig identifies this appliance instance.
type ServerConfig struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
}

// StoreConfig locates the on-device config store's backing directory.
type StoreConfig struct {
	Dir                string `mapstructure:"dir"`
	BuiltinFwkVersion  uint32 `mapstructure:"builtin_fwk_version"`
	AppVersion         uint32 `mapstructure:"app_version"`
	AppSize            uint32 `mapstructure:"app_size"`
}

// FaceDBConfig locates the face database backing store.
type FaceDBConfig struct {
	Path        string `mapstructure:"path"`
	FeatureSize int    `mapstructure:"feature_size"`
}

// DashboardConfig holds the web/dashboard device's listener settings.
type DashboardConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	AuthRequired bool   `mapstructure:"auth_required"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
}

// MQTTConfig holds the mqttout device's broker settings.
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	QoS         byte   `mapstructure:"qos"`
	Retained    bool   `mapstructure:"retained"`
}

// LoggingConfig holds the ambient logger's settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds the Prometheus exporter's settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// MulticoreConfig holds the multicore bridge's peer-link settings.
type MulticoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Peer    string `mapstructure:"peer"`
}

// Load reads configFile (or the default search path) through viper,
// applying defaults and environment overrides, and validates the
// result.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("appliance")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/appliance")
	}

	v.SetEnvPrefix("APPLIANCE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// fine, defaults apply
		} else if os.IsNotExist(err) {
			// fine, defaults apply
		} else {
			return nil, fmt.Errorf("bootconfig: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("bootconfig: unmarshalling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("bootconfig: validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "appliance-sim")
	v.SetDefault("server.description", "camera/display appliance framework simulator")

	v.SetDefault("store.dir", "cfg")
	v.SetDefault("store.builtin_fwk_version", 1)
	v.SetDefault("store.app_version", 1)
	v.SetDefault("store.app_size", 0)

	v.SetDefault("facedb.path", "facedb.sqlite3")
	v.SetDefault("facedb.feature_size", 128)

	v.SetDefault("dashboard.enabled", true)
	v.SetDefault("dashboard.host", "0.0.0.0")
	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("dashboard.auth_required", false)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.topic_prefix", "appliance")
	v.SetDefault("mqtt.client_id", "appliance-sim")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.retained", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("multicore.enabled", false)
	v.SetDefault("multicore.listen", "")
	v.SetDefault("multicore.peer", "")
}
