package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	promconfig "github.com/prometheus/common/config"
	"github.com/prometheus/common/model"
	"go.yaml.in/yaml/v2"

	"alertwatch/internal/models"
	"alertwatch/internal/render"
)

// ErrInvalid is returned when a configuration fails validation
var ErrInvalid = errors.New("invalid configuration")

// Config holds runtime configuration for alertwatch.
type Config struct {
	// Address the HTTP page and API listen on
	ListenAddress string `yaml:"listen_address"`
	// Log level: trace, debug, info, warn, error
	LogLevel string `yaml:"log_level"`
	// Node identifier stamped on published snapshots (hostname if empty)
	NodeID string `yaml:"node_id,omitempty"`

	Upstream UpstreamConfig `yaml:"upstream"`
	Pollers  []PollerConfig `yaml:"pollers"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

// UpstreamConfig describes the server pollers fetch alerts from
type UpstreamConfig struct {
	// Base URL that poller paths are resolved against
	URL string `yaml:"url"`
	// HTTP client settings (TLS, auth, proxy) shared by all pollers
	HTTPClient promconfig.HTTPClientConfig `yaml:"http_client,omitempty"`
}

// PollerConfig configures one poller and the container it owns
type PollerConfig struct {
	// Name of a preset to fill unset fields from: text or counted
	Preset string `yaml:"preset,omitempty"`

	Name        string         `yaml:"name"`
	Schema      models.Schema  `yaml:"schema"`
	Path        string         `yaml:"path"`
	Interval    model.Duration `yaml:"interval"`
	Timeout     model.Duration `yaml:"timeout,omitempty"`
	ContainerID string         `yaml:"container_id"`
	Markup      render.Markup  `yaml:"markup"`
	// Skip rendering responses older than what is already shown
	DropStale bool `yaml:"drop_stale,omitempty"`
}

// KafkaConfig configures optional snapshot publishing
type KafkaConfig struct {
	// Kafka brokers; publishing is disabled when empty
	Brokers  []string       `yaml:"brokers"`
	Topic    string         `yaml:"topic"`
	Producer ProducerConfig `yaml:"producer"`
	// Capacity of the queue between pollers and publisher workers
	QueueSize int `yaml:"queue_size"`
	// Publish only the newest snapshot per container in each batch
	Coalesce bool `yaml:"coalesce"`
}

// ProducerConfig holds Kafka producer tuning
type ProducerConfig struct {
	PoolSize     int            `yaml:"pool_size"`
	BatchSize    int            `yaml:"batch_size"`
	BatchTimeout model.Duration `yaml:"batch_timeout"`
	WriteTimeout model.Duration `yaml:"write_timeout"`
	RequiredAcks int            `yaml:"required_acks"`
	Compression  string         `yaml:"compression"`
	MaxRetries   int            `yaml:"max_retries"`
	RetryBackoff model.Duration `yaml:"retry_backoff"`
}

// Enabled reports whether snapshot publishing is configured
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		ListenAddress: ":8080",
		LogLevel:      "info",
		Upstream: UpstreamConfig{
			URL:        "http://localhost:5000",
			HTTPClient: promconfig.DefaultHTTPClientConfig,
		},
		Pollers: []PollerConfig{PresetCounted(), PresetText()},
		Kafka:   DefaultKafka(),
	}
}

// DefaultKafka returns the Kafka settings used when the file leaves them out
func DefaultKafka() KafkaConfig {
	return KafkaConfig{
		Topic:     "alertwatch-snapshots",
		QueueSize: 256,
		Producer: ProducerConfig{
			PoolSize:     2,
			BatchSize:    50,
			BatchTimeout: model.Duration(time.Second),
			WriteTimeout: model.Duration(10 * time.Second),
			RequiredAcks: 1,
			Compression:  "snappy",
			MaxRetries:   3,
			RetryBackoff: model.Duration(100 * time.Millisecond),
		},
	}
}

// Load reads a YAML config file on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML config content on top of the defaults and validates it
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if err := cfg.applyPresets(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyPresets fills unset poller fields from their named preset
func (c *Config) applyPresets() error {
	for i := range c.Pollers {
		p := &c.Pollers[i]
		if p.Preset == "" {
			continue
		}

		preset, err := Preset(p.Preset)
		if err != nil {
			return fmt.Errorf("%w: pollers[%d]: %v", ErrInvalid, i, err)
		}
		p.fillFrom(preset)
	}
	return nil
}

func (p *PollerConfig) fillFrom(d PollerConfig) {
	if p.Name == "" {
		p.Name = d.Name
	}
	if p.Schema == "" {
		p.Schema = d.Schema
	}
	if p.Path == "" {
		p.Path = d.Path
	}
	if p.Interval == 0 {
		p.Interval = d.Interval
	}
	if p.Timeout == 0 {
		p.Timeout = d.Timeout
	}
	if p.ContainerID == "" {
		p.ContainerID = d.ContainerID
	}
	if p.Markup == "" {
		p.Markup = d.Markup
	}
}

// Validate checks the configuration and reports every problem found
func (c *Config) Validate() error {
	var problems []string

	if c.ListenAddress == "" {
		problems = append(problems, "listen_address is required")
	}

	if _, err := parseBase(c.Upstream.URL); err != nil {
		problems = append(problems, err.Error())
	}

	if err := c.Upstream.HTTPClient.Validate(); err != nil {
		problems = append(problems, fmt.Sprintf("upstream.http_client: %v", err))
	}

	if len(c.Pollers) == 0 {
		problems = append(problems, "at least one poller is required")
	}

	names := make(map[string]bool, len(c.Pollers))
	containers := make(map[string]bool, len(c.Pollers))
	for i, p := range c.Pollers {
		prefix := fmt.Sprintf("pollers[%d]", i)
		if p.Name == "" {
			problems = append(problems, prefix+": name is required")
		} else if names[p.Name] {
			problems = append(problems, fmt.Sprintf("%s: duplicate name %q", prefix, p.Name))
		}
		names[p.Name] = true

		if p.ContainerID == "" {
			problems = append(problems, prefix+": container_id is required")
		} else if containers[p.ContainerID] {
			problems = append(problems, fmt.Sprintf("%s: container %q is already owned by another poller", prefix, p.ContainerID))
		}
		containers[p.ContainerID] = true

		if !p.Schema.IsValid() {
			problems = append(problems, fmt.Sprintf("%s: unknown schema %q", prefix, p.Schema))
		}
		if !p.Markup.IsValid() {
			problems = append(problems, fmt.Sprintf("%s: unknown markup %q", prefix, p.Markup))
		}
		if p.Path == "" {
			problems = append(problems, prefix+": path is required")
		}
		if p.Interval <= 0 {
			problems = append(problems, prefix+": interval must be positive")
		}
		if p.Timeout < 0 {
			problems = append(problems, prefix+": timeout cannot be negative")
		}
	}

	if c.Kafka.Enabled() {
		if c.Kafka.Topic == "" {
			problems = append(problems, "kafka.topic is required when brokers are set")
		}
		if c.Kafka.QueueSize < 0 {
			problems = append(problems, "kafka.queue_size cannot be negative")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// URL returns the absolute endpoint URL of a poller. Absolute paths in the
// poller config are used as is.
func (c *Config) URL(p PollerConfig) (string, error) {
	if u, err := url.Parse(p.Path); err == nil && u.IsAbs() {
		return u.String(), nil
	}

	base, err := parseBase(c.Upstream.URL)
	if err != nil {
		return "", err
	}

	ref, err := url.Parse(p.Path)
	if err != nil {
		return "", fmt.Errorf("poller %s: invalid path %q: %w", p.Name, p.Path, err)
	}
	return base.JoinPath(ref.Path).String(), nil
}

func parseBase(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.New("upstream.url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("upstream.url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream.url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("upstream.url: host is required")
	}
	return u, nil
}
