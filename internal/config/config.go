// Package config loads the daemon configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/arloliu/go-packedserial/registry"
)

// EnvPrefix is the prefix of environment overrides, e.g. PACKEDSERIAL_HTTP_ADDR.
const EnvPrefix = "PACKEDSERIAL"

// HTTPConfig is the HTTP API listener.
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	// CommandRate limits property commands per second. Zero disables the limit.
	CommandRate  float64 `mapstructure:"commandRate"`
	CommandBurst int     `mapstructure:"commandBurst"`
}

// LumberjackConfig is the rolling log file.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig is the log level and outputs. An empty file name logs to stdout only.
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig is the Prometheus endpoint.
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// RedisConfig is the optional Redis directory mirror.
type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Addr          string        `mapstructure:"addr"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	Prefix        string        `mapstructure:"prefix"`
	DialTimeout   time.Duration `mapstructure:"dialTimeout"`
	MirrorTimeout time.Duration `mapstructure:"mirrorTimeout"`
}

// BoardConfig is applied to every board session.
type BoardConfig struct {
	SettleDelay     time.Duration `mapstructure:"settleDelay"`
	ResponseTimeout time.Duration `mapstructure:"responseTimeout"`
	SendTimeout     time.Duration `mapstructure:"sendTimeout"`
}

// PairingConfig controls port discovery.
type PairingConfig struct {
	// OnStart pairs once when the daemon starts.
	OnStart bool          `mapstructure:"onStart"`
	Timeout time.Duration `mapstructure:"timeout"`
	// Rescan looks for new ports periodically. Zero disables it.
	Rescan    time.Duration       `mapstructure:"rescan"`
	Selectors []registry.Selector `mapstructure:"selectors"`
}

// Config is the daemon configuration.
type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Board   BoardConfig   `mapstructure:"board"`
	Pairing PairingConfig `mapstructure:"pairing"`
}

// Load reads the configuration from a YAML, TOML or JSON file and PACKEDSERIAL_ environment
// variables. With an empty path, PACKEDSERIAL_CONFIG is used, then ./packedserial.yaml and
// ./configs/packedserial.yaml; a missing file falls back to defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("packedserial")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values the board and HTTP layers cannot reject themselves.
func (cfg *Config) Validate() error {
	var errs []error

	if cfg.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr must not be empty"))
	}
	if cfg.HTTP.CommandRate < 0 {
		errs = append(errs, fmt.Errorf("http.commandRate %v must not be negative", cfg.HTTP.CommandRate))
	}
	if cfg.HTTP.CommandRate > 0 && cfg.HTTP.CommandBurst <= 0 {
		errs = append(errs, fmt.Errorf("http.commandBurst %d must be positive", cfg.HTTP.CommandBurst))
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr must be set when redis is enabled"))
	}
	if cfg.Pairing.Timeout < 0 || cfg.Pairing.Rescan < 0 {
		errs = append(errs, errors.New("pairing durations must not be negative"))
	}
	for i, sel := range cfg.Pairing.Selectors {
		if sel.BaudRate < 0 {
			errs = append(errs, fmt.Errorf("pairing.selectors[%d].baudRate %d must not be negative", i, sel.BaudRate))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")
	v.SetDefault("http.commandRate", 20)
	v.SetDefault("http.commandBurst", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "packedserial:")
	v.SetDefault("redis.dialTimeout", "5s")
	v.SetDefault("redis.mirrorTimeout", "2s")

	v.SetDefault("board.settleDelay", "2s")
	v.SetDefault("board.responseTimeout", "5s")
	v.SetDefault("board.sendTimeout", "3s")

	v.SetDefault("pairing.onStart", true)
	v.SetDefault("pairing.timeout", "30s")
	v.SetDefault("pairing.rescan", "0s")
	v.SetDefault("pairing.selectors", []map[string]any{
		{"use": true, "vendorId": "2341"},
		{"use": true, "path": "/dev/ttyACM"},
		{"use": true, "path": "/dev/ttyUSB"},
	})
}
