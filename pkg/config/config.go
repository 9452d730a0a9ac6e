// Package config holds application configuration for the bgctl tool and
// the serial defaults shared by its commands.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Port           string        `yaml:"port" default:"/dev/ttyACM0"`
	Baud           int           `yaml:"baud" default:"115200"`
	LogLevel       string        `yaml:"log_level" default:"panic"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"5s"`
	ScanDuration   time.Duration `yaml:"scan_duration" default:"10s"`
	ReadTimeout    time.Duration `yaml:"read_timeout" default:"3s"`
	OutputFormat   string        `yaml:"output_format" default:"table"` // table, json
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file on top of the defaults. A missing file is
// not an error; the defaults stand.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// UnmarshalYAML decodes the config, accepting durations in the usual Go
// notation ("5s", "250ms"). Absent keys leave the current values alone.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type raw struct {
		Port           *string `yaml:"port"`
		Baud           *int    `yaml:"baud"`
		LogLevel       *string `yaml:"log_level"`
		ConnectTimeout *string `yaml:"connect_timeout"`
		ScanDuration   *string `yaml:"scan_duration"`
		ReadTimeout    *string `yaml:"read_timeout"`
		OutputFormat   *string `yaml:"output_format"`
	}
	var r raw
	if err := node.Decode(&r); err != nil {
		return err
	}
	if r.Port != nil {
		c.Port = *r.Port
	}
	if r.Baud != nil {
		c.Baud = *r.Baud
	}
	if r.LogLevel != nil {
		c.LogLevel = *r.LogLevel
	}
	if r.OutputFormat != nil {
		c.OutputFormat = *r.OutputFormat
	}
	for _, f := range []struct {
		in  *string
		out *time.Duration
	}{
		{r.ConnectTimeout, &c.ConnectTimeout},
		{r.ScanDuration, &c.ScanDuration},
		{r.ReadTimeout, &c.ReadTimeout},
	} {
		if f.in == nil {
			continue
		}
		d, err := time.ParseDuration(*f.in)
		if err != nil {
			return err
		}
		*f.out = d
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger, nil
}
