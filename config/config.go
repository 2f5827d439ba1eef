// Package config loads the YAML configuration of the tetherd daemon.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/arloliu/go-tether/logger"
	"github.com/arloliu/go-tether/natsbridge"
	"github.com/arloliu/go-tether/tether"
	"github.com/arloliu/go-tether/transport/serialport"
	"github.com/arloliu/go-tether/transport/tcp"
	"gopkg.in/yaml.v3"
)

// Transport kinds.
const (
	TransportSerial = "serial"
	TransportTCP    = "tcp"
)

// Config is the daemon configuration.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	HTTP     HTTPConfig     `yaml:"http"`
	NATS     NATSConfig     `yaml:"nats"`
	Session  SessionConfig  `yaml:"session"`
	Devices  []DeviceConfig `yaml:"devices"`
}

// HTTPConfig configures the HTTP server exposing /metrics, /ws and /healthz.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// NATSConfig configures the NATS bridge. An empty URL disables it.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// SessionConfig holds the settings shared by every session.
type SessionConfig struct {
	ActivityTimeout time.Duration `yaml:"activity_timeout"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	IdleInterval    time.Duration `yaml:"idle_interval"`
	// ReconnectDelay > 0 selects a constant delay; zero keeps the exponential back-off.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	EventQueueSize int           `yaml:"event_queue_size"`
	MaxFrameSize   int           `yaml:"max_frame_size"`
}

// DeviceConfig describes one device and how to reach it.
type DeviceConfig struct {
	Address   string       `yaml:"address"`
	Transport string       `yaml:"transport"`
	Serial    SerialConfig `yaml:"serial"`
	TCP       TCPConfig    `yaml:"tcp"`
	Autostart bool         `yaml:"autostart"`
}

// SerialConfig configures a serial transport.
type SerialConfig struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// TCPConfig configures a TCP transport.
type TCPConfig struct {
	Addr        string        `yaml:"addr"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// Default returns the configuration used for keys absent from the file.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		HTTP:     HTTPConfig{Listen: ":9180"},
		NATS:     NATSConfig{SubjectPrefix: natsbridge.DefaultSubjectPrefix},
		Session: SessionConfig{
			ActivityTimeout: tether.DefaultActivityTimeout,
			ConnectTimeout:  tether.DefaultConnectTimeout,
			IdleInterval:    tether.DefaultIdleInterval,
			EventQueueSize:  tether.DefaultEventQueueSize,
			MaxFrameSize:    tether.DefaultMaxFrameSize,
		},
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes and validates a YAML configuration.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the device list and the log level.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Devices))
	for i, dev := range c.Devices {
		if dev.Address == "" {
			return fmt.Errorf("config: device %d: address is empty", i)
		}
		if _, ok := seen[dev.Address]; ok {
			return fmt.Errorf("config: device %q: duplicated address", dev.Address)
		}
		seen[dev.Address] = struct{}{}

		switch dev.Transport {
		case TransportSerial:
			if dev.Serial.Port == "" {
				return fmt.Errorf("config: device %q: serial port is empty", dev.Address)
			}
		case TransportTCP:
			if dev.TCP.Addr == "" {
				return fmt.Errorf("config: device %q: tcp addr is empty", dev.Address)
			}
		default:
			return fmt.Errorf("config: device %q: unknown transport %q", dev.Address, dev.Transport)
		}
	}

	if _, err := tether.NewSessionConfig(c.SessionOptions()...); err != nil {
		return fmt.Errorf("config: session: %w", err)
	}

	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() logger.Level {
	level, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return logger.InfoLevel
	}

	return level
}

// SessionOptions converts the session settings to session options.
func (c *Config) SessionOptions() []tether.SessionOption {
	s := c.Session
	opts := []tether.SessionOption{
		tether.WithActivityTimeout(s.ActivityTimeout),
		tether.WithConnectTimeout(s.ConnectTimeout),
		tether.WithIdleInterval(s.IdleInterval),
		tether.WithEventQueueSize(s.EventQueueSize),
		tether.WithMaxFrameSize(s.MaxFrameSize),
	}
	if s.ReconnectDelay > 0 {
		opts = append(opts, tether.WithReconnectDelay(s.ReconnectDelay))
	}

	return opts
}

// Device returns the configuration of the device with address.
func (c *Config) Device(address string) (DeviceConfig, bool) {
	for _, dev := range c.Devices {
		if dev.Address == address {
			return dev, true
		}
	}

	return DeviceConfig{}, false
}

// Autostart returns the addresses of the devices started with the daemon.
func (c *Config) Autostart() []string {
	var addrs []string
	for _, dev := range c.Devices {
		if dev.Autostart {
			addrs = append(addrs, dev.Address)
		}
	}

	return addrs
}

// ErrUnknownDevice is returned by the transport factory for addresses absent from the
// configuration.
var ErrUnknownDevice = errors.New("config: unknown device")

// TransportFactory returns a factory creating the configured transport of each device.
func (c *Config) TransportFactory(l logger.Logger) tether.TransportFactory {
	if l == nil {
		l = logger.GetLogger()
	}

	return func(address string) (tether.Transport, error) {
		dev, ok := c.Device(address)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, address)
		}

		tl := l.With("address", address)
		switch dev.Transport {
		case TransportSerial:
			return serialport.New(dev.Serial.Port,
				serialport.WithBaudRate(dev.Serial.Baud),
				serialport.WithReadTimeout(dev.Serial.ReadTimeout),
				serialport.WithLogger(tl),
			), nil
		case TransportTCP:
			return tcp.New(dev.TCP.Addr,
				tcp.WithReadTimeout(dev.TCP.ReadTimeout),
				tcp.WithLogger(tl),
			), nil
		default:
			return nil, fmt.Errorf("config: device %q: unknown transport %q", address, dev.Transport)
		}
	}
}
