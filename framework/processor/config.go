package processor

import (
	"io"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

const (
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = time.Second
	DefaultLoopRetryDelay = 5 * time.Second
)

// Config describes one processor, that is one partition of one event
// handling group. Durations are written like "250ms" or "5s" in YAML.
type Config struct {
	Group      string `yaml:"group"`
	Subject    string `yaml:"subject"`
	Recursive  bool   `yaml:"recursive"`
	Partition  int    `yaml:"partition"`
	Partitions int    `yaml:"partitions"`

	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	LoopRetryDelay time.Duration `yaml:"loop_retry_delay"`
	// HandlerTimeout bounds each handler call, zero means no bound.
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
}

// DefaultConfig observes every subject for group on a single partition.
func DefaultConfig(group string) Config {
	return Config{Group: group}.WithDefaults()
}

// WithDefaults fills in what c leaves empty.
func (c Config) WithDefaults() Config {
	if c.Subject == "" {
		c.Subject = "/"
		c.Recursive = true
	}
	if c.Partitions < 1 {
		c.Partitions = 1
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.LoopRetryDelay <= 0 {
		c.LoopRetryDelay = DefaultLoopRetryDelay
	}
	return c
}

func (c Config) Validate() error {
	if c.Group == "" {
		return errors.Wrap(ErrInvalidConfig, "group is required")
	}
	if c.Partitions < 1 {
		return errors.Wrapf(ErrInvalidConfig, "partitions must be positive, got %d", c.Partitions)
	}
	if c.Partition < 0 || c.Partition >= c.Partitions {
		return errors.Wrapf(ErrInvalidConfig, "partition %d outside [0, %d)", c.Partition, c.Partitions)
	}
	if c.HandlerTimeout < 0 {
		return errors.Wrap(ErrInvalidConfig, "negative handler timeout")
	}
	return nil
}

// Split returns one config per partition of c's group.
func (c Config) Split() []Config {
	out := make([]Config, c.Partitions)
	for i := range out {
		out[i] = c
		out[i].Partition = i
	}
	return out
}

// LoadConfig reads a single processor config from YAML, applies the
// defaults and validates it.
func LoadConfig(r io.Reader) (Config, error) {
	var c Config
	if err := decode(r, &c); err != nil {
		return Config{}, err
	}
	c = c.WithDefaults()
	return c, c.Validate()
}

// LoadConfigs reads a document with a top level "processors" list.
func LoadConfigs(r io.Reader) ([]Config, error) {
	var doc struct {
		Processors []Config `yaml:"processors"`
	}
	if err := decode(r, &doc); err != nil {
		return nil, err
	}
	out := make([]Config, 0, len(doc.Processors))
	for i, c := range doc.Processors {
		c = c.WithDefaults()
		if err := c.Validate(); err != nil {
			return nil, errors.Wrapf(err, "processor %d", i)
		}
		out = append(out, c)
	}
	return out, nil
}

func decode(r io.Reader, into interface{}) error {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "processor: reading config")
	}
	if err := yaml.UnmarshalStrict(b, into); err != nil {
		return errors.Wrap(err, "processor: parsing config")
	}
	return nil
}
