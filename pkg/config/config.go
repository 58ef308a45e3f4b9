// Package config loads pmdrelay configuration from defaults, an optional YAML
// file, PMDRELAY_* environment variables and command line flags, in that order
// of increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/srg/pmdrelay/pkg/observer"
	"github.com/srg/pmdrelay/pkg/pmd"
	"github.com/srg/pmdrelay/pkg/relay"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. PMDRELAY_RELAY_PORT.
const EnvPrefix = "PMDRELAY"

// Relay kinds.
const (
	RelayTCP  = "tcp"
	RelayPTY  = "pty"
	RelayNone = "none"
)

// Config holds application configuration
type Config struct {
	LogLevel string         `mapstructure:"log_level" yaml:"log_level"` // empty keeps logging silent
	Device   DeviceConfig   `mapstructure:"device" yaml:"device"`
	Stream   StreamConfig   `mapstructure:"stream" yaml:"stream"`
	Relay    RelayConfig    `mapstructure:"relay" yaml:"relay"`
	Observer ObserverConfig `mapstructure:"observer" yaml:"observer"`
}

// DeviceConfig selects the sensor and bounds BLE operations.
type DeviceConfig struct {
	Address        string        `mapstructure:"address" yaml:"address"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" default:"30s"`
	OpTimeout      time.Duration `mapstructure:"op_timeout" yaml:"op_timeout" default:"5s"`
}

// StreamConfig holds the PMD start settings and the session loop parameters.
// SampleRate and Resolution are passed to the sensor verbatim.
type StreamConfig struct {
	SampleRate   uint16        `mapstructure:"sample_rate" yaml:"sample_rate" default:"130"`
	Resolution   uint16        `mapstructure:"resolution" yaml:"resolution" default:"14"`
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval" default:"1s"`
	Window       int           `mapstructure:"window" yaml:"window" default:"30"`
	QueueSize    int           `mapstructure:"queue_size" yaml:"queue_size" default:"1024"`
}

// RelayConfig selects where decoded samples are forwarded.
type RelayConfig struct {
	Kind         string        `mapstructure:"kind" yaml:"kind" default:"tcp"` // tcp, pty or none
	Host         string        `mapstructure:"host" yaml:"host" default:"127.0.0.1"`
	Port         int           `mapstructure:"port" yaml:"port" default:"9999"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" default:"5s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" default:"2s"`
	PTYLink      string        `mapstructure:"pty_link" yaml:"pty_link"`
	StagingSize  int           `mapstructure:"staging_size" yaml:"staging_size" default:"4096"`
}

// ObserverConfig enables the event sinks. Empty addresses disable a sink.
type ObserverConfig struct {
	QueueSize     int           `mapstructure:"queue_size" yaml:"queue_size" default:"256"`
	Console       bool          `mapstructure:"console" yaml:"console" default:"true"`
	WebSocketAddr string        `mapstructure:"websocket_addr" yaml:"websocket_addr"`
	MQTTBroker    string        `mapstructure:"mqtt_broker" yaml:"mqtt_broker"`
	MQTTTopic     string        `mapstructure:"mqtt_topic" yaml:"mqtt_topic" default:"pmdrelay"`
	MQTTSamples   bool          `mapstructure:"mqtt_samples" yaml:"mqtt_samples"`
	MQTTKeepAlive uint16        `mapstructure:"mqtt_keepalive" yaml:"mqtt_keepalive" default:"30"`
	MQTTQoS       byte          `mapstructure:"mqtt_qos" yaml:"mqtt_qos"`
	MQTTTimeout   time.Duration `mapstructure:"mqtt_connect_timeout" yaml:"mqtt_connect_timeout" default:"5s"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load builds the effective configuration. path may be empty. Flags that were
// set on the command line override every other source; see flagName for how
// keys map to flags.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	seed, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(seed)); err != nil {
		return nil, fmt.Errorf("failed to seed defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for _, key := range v.AllKeys() {
			if f := flags.Lookup(flagName(key)); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// flagName maps a config key to its flag name by dropping the section and
// dashing underscores: "relay.pty_link" → "pty-link". Two keys are special-cased
// to keep flag names unique and short.
func flagName(key string) string {
	switch key {
	case "relay.kind":
		return "relay"
	case "observer.queue_size":
		return "observer-queue-size"
	}
	if i := strings.IndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	return strings.ReplaceAll(key, "_", "-")
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			errs = append(errs, fmt.Errorf("log_level: %w", err))
		}
	}
	switch c.Relay.Kind {
	case RelayTCP:
		if c.Relay.Port <= 0 || c.Relay.Port > 65535 {
			errs = append(errs, fmt.Errorf("relay.port: %d out of range", c.Relay.Port))
		}
	case RelayPTY, RelayNone:
	default:
		errs = append(errs, fmt.Errorf("relay.kind: %q is not one of tcp, pty, none", c.Relay.Kind))
	}
	if c.Stream.SampleRate == 0 {
		errs = append(errs, errors.New("stream.sample_rate: must be positive"))
	}
	if c.Stream.TickInterval <= 0 {
		errs = append(errs, errors.New("stream.tick_interval: must be positive"))
	}
	if c.Observer.MQTTQoS > 2 {
		errs = append(errs, fmt.Errorf("observer.mqtt_qos: %d is not 0, 1 or 2", c.Observer.MQTTQoS))
	}
	return errors.Join(errs...)
}

// Level returns the configured log level. An empty level is PanicLevel, which
// keeps normal operation silent; a level that does not parse is InfoLevel.
func (c *Config) Level() logrus.Level {
	if c.LogLevel == "" {
		return logrus.PanicLevel
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// StartCommand returns the PMD start command for the configured stream settings.
func (c *Config) StartCommand() pmd.StartCommand {
	return pmd.StartCommand{
		Measure:    pmd.ECGType,
		SampleRate: c.Stream.SampleRate,
		Resolution: c.Stream.Resolution,
	}
}

// RelayAddress returns host:port for the TCP relay.
func (c *Config) RelayAddress() string {
	return net.JoinHostPort(c.Relay.Host, strconv.Itoa(c.Relay.Port))
}

// RelayDialer returns the dialer for the configured relay kind.
func (c *Config) RelayDialer(logger *logrus.Logger) relay.Dialer {
	switch c.Relay.Kind {
	case RelayTCP:
		return relay.TCPDialer(c.RelayAddress(), c.Relay.DialTimeout, c.Relay.WriteTimeout)
	case RelayPTY:
		return relay.PTYDialer(c.Relay.PTYLink, logger)
	default:
		return relay.NoDialer()
	}
}

// MQTTOptions returns the MQTT sink options.
func (c *Config) MQTTOptions() observer.MQTTOptions {
	return observer.MQTTOptions{
		Broker:         c.Observer.MQTTBroker,
		TopicPrefix:    c.Observer.MQTTTopic,
		QoS:            c.Observer.MQTTQoS,
		KeepAlive:      c.Observer.MQTTKeepAlive,
		Timeout:        c.Observer.MQTTTimeout,
		PublishSamples: c.Observer.MQTTSamples,
	}
}

// YAML renders the configuration as YAML.
func (c *Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
