package syncserver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddress string `yaml:"listen_address"`
	DatabasePath  string `yaml:"database_path"`
	// QueueSize bounds the number of undelivered messages per connection before it is dropped as a slow consumer.
	QueueSize        int           `yaml:"queue_size"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingPeriod       time.Duration `yaml:"ping_period"`
	MaxMessageBytes  int64         `yaml:"max_message_bytes"`
}

func DefaultConfig() Config {
	return Config{
		ListenAddress:    "localhost:8080",
		DatabasePath:     "tasklens-sync.sqlite3",
		QueueSize:        256,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingPeriod:       30 * time.Second,
		MaxMessageBytes:  16 << 20,
	}
}

// LoadConfig reads a YAML file over the defaults. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.ListenAddress == "" {
		errs = append(errs, errors.New("listen_address is required"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if c.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("queue_size must be at least 1, got %d", c.QueueSize))
	}
	for name, d := range map[string]time.Duration{
		"handshake_timeout": c.HandshakeTimeout,
		"write_timeout":     c.WriteTimeout,
		"ping_period":       c.PingPeriod,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.MaxMessageBytes < 1 {
		errs = append(errs, fmt.Errorf("max_message_bytes must be positive, got %d", c.MaxMessageBytes))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
