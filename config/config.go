// Package config provides the configuration structures of the client.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	models "github.com/tabwire/tds/pkg/models/tds"
)

// Config describes one target server and how to connect to it. It is
// populated from flags and a YAML file through viper, so every field carries
// the full tag set.
type Config struct {
	Host        string `json:"host" yaml:"host" mapstructure:"host"`
	Port        int    `json:"port" yaml:"port" mapstructure:"port"`
	Instance    string `json:"instance" yaml:"instance" mapstructure:"instance"`
	User        string `json:"user" yaml:"user" mapstructure:"user"`
	Password    string `json:"-" yaml:"password" mapstructure:"password"`
	Database    string `json:"database" yaml:"database" mapstructure:"database"`
	AppName     string `json:"appName" yaml:"appName" mapstructure:"appName"`
	Workstation string `json:"workstation" yaml:"workstation" mapstructure:"workstation"`

	// Encrypt is one of "off", "on", "required" or "disable".
	Encrypt    string `json:"encrypt" yaml:"encrypt" mapstructure:"encrypt"`
	MARS       bool   `json:"mars" yaml:"mars" mapstructure:"mars"`
	PacketSize int    `json:"packetSize" yaml:"packetSize" mapstructure:"packetSize"`

	ConnectTimeout time.Duration `json:"connectTimeout" yaml:"connectTimeout" mapstructure:"connectTimeout"`
	RetryInterval  time.Duration `json:"retryInterval" yaml:"retryInterval" mapstructure:"retryInterval"`
	MaxRetries     int           `json:"maxRetries" yaml:"maxRetries" mapstructure:"maxRetries"`
}

// New returns a Config with the defaults applied.
func New() *Config {
	return &Config{
		Port:           1433,
		AppName:        "tabwire",
		Encrypt:        "off",
		PacketSize:     models.DefaultPacketSize,
		ConnectTimeout: 15 * time.Second,
		RetryInterval:  500 * time.Millisecond,
		MaxRetries:     3,
	}
}

// Validate checks the configuration and normalizes out-of-range values,
// warning through logger when it adjusts anything.
func (c *Config) Validate(logger *zap.Logger) error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := c.EncryptionMode(); err != nil {
		return err
	}
	if c.PacketSize < models.MinPacketSize {
		logger.Warn("packet size below protocol minimum, clamping",
			zap.Int("requested", c.PacketSize), zap.Int("using", models.MinPacketSize))
		c.PacketSize = models.MinPacketSize
	} else if c.PacketSize > models.MaxPacketSize {
		logger.Warn("packet size above protocol maximum, clamping",
			zap.Int("requested", c.PacketSize), zap.Int("using", models.MaxPacketSize))
		c.PacketSize = models.MaxPacketSize
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connectTimeout must be positive")
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("retryInterval must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("maxRetries must not be negative")
	}
	return nil
}

// Addr returns the dial target in host:port form.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// EncryptionMode maps the Encrypt string to the prelogin negotiation value.
// "disable" advertises no TLS support at all, while "off" leaves TLS
// available but only upgrades when the server insists.
func (c *Config) EncryptionMode() (models.EncryptionMode, error) {
	switch strings.ToLower(c.Encrypt) {
	case "", "off":
		return models.EncryptionOff, nil
	case "on":
		return models.EncryptionOn, nil
	case "required":
		return models.EncryptionRequired, nil
	case "disable":
		return models.EncryptionNotSupported, nil
	default:
		return 0, fmt.Errorf("invalid encrypt value %q, want off, on, required or disable", c.Encrypt)
	}
}
