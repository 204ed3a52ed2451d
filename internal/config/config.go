package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Weights are the fusion coefficients for the three modalities. They must
// sum to 1.0; a failed pipeline keeps its weight and contributes a 0 score,
// the weights are never renormalized per request.
type Weights struct {
	Content float64 `yaml:"content"`
	Prosody float64 `yaml:"prosody"`
	Visual  float64 `yaml:"visual"`
}

// Timeouts bound each pipeline invocation independently.
type Timeouts struct {
	Vision  time.Duration `yaml:"-"`
	Prosody time.Duration `yaml:"-"`
	Judge   time.Duration `yaml:"-"`
}

// UnmarshalYAML accepts Go duration strings ("45s", "2m"). Fields left out
// of the file keep their current (default) values.
func (t *Timeouts) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Vision  string `yaml:"vision"`
		Prosody string `yaml:"prosody"`
		Judge   string `yaml:"judge"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	for _, f := range []struct {
		dst *time.Duration
		val string
	}{
		{&t.Vision, raw.Vision},
		{&t.Prosody, raw.Prosody},
		{&t.Judge, raw.Judge},
	} {
		if f.val == "" {
			continue
		}
		d, err := time.ParseDuration(f.val)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", f.val, err)
		}
		*f.dst = d
	}
	return nil
}

type Config struct {
	Weights  Weights  `yaml:"weights"`
	Timeouts Timeouts `yaml:"timeouts"`
}

const weightTolerance = 1e-9

// Default weights: content 35%, prosody 35%, visual 30%.
// Timeouts are generous because the collaborators run CPU inference.
func Default() Config {
	return Config{
		Weights:  Weights{Content: 0.35, Prosody: 0.35, Visual: 0.30},
		Timeouts: Timeouts{Vision: 120 * time.Second, Prosody: 120 * time.Second, Judge: 60 * time.Second},
	}
}

// Load builds the effective config: defaults, then the optional YAML file
// at path (EVAL_CONFIG), then env overrides. Validation errors here are
// fatal at startup, never deferred to request time.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := envFloat("WEIGHT_CONTENT"); ok {
		cfg.Weights.Content = v
	}
	if v, ok := envFloat("WEIGHT_PROSODY"); ok {
		cfg.Weights.Prosody = v
	}
	if v, ok := envFloat("WEIGHT_VISUAL"); ok {
		cfg.Weights.Visual = v
	}
	if v, ok := envDuration("TIMEOUT_VISION"); ok {
		cfg.Timeouts.Vision = v
	}
	if v, ok := envDuration("TIMEOUT_PROSODY"); ok {
		cfg.Timeouts.Prosody = v
	}
	if v, ok := envDuration("TIMEOUT_JUDGE"); ok {
		cfg.Timeouts.Judge = v
	}
}

func envFloat(key string) (float64, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envDuration(key string) (time.Duration, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false
	}
	return d, true
}

func (w Weights) Validate() error {
	for name, v := range map[string]float64{"content": w.Content, "prosody": w.Prosody, "visual": w.Visual} {
		if v < 0 || v > 1 {
			return fmt.Errorf("weight %s out of range: %v", name, v)
		}
	}
	if sum := w.Content + w.Prosody + w.Visual; math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %v", sum)
	}
	return nil
}

func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.Timeouts.Vision <= 0 || c.Timeouts.Prosody <= 0 || c.Timeouts.Judge <= 0 {
		return fmt.Errorf("pipeline timeouts must be positive")
	}
	return nil
}
