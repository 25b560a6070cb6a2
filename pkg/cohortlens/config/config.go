// Package config loads the service configuration from a YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cohortlens/cohortlens/pkg/cohortlens/internalerr"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/project"
)

// Config is the full service configuration.
type Config struct {
	// DatabasePath is the sqlite database file. An empty value selects the
	// in-memory store.
	DatabasePath string `yaml:"database_path"`
	// UploadDir is the root directory for stored document files.
	UploadDir string `yaml:"upload_dir"`

	ListenAddr string `yaml:"listen_addr"`

	Embedding  Embedding  `yaml:"embedding"`
	Projection Projection `yaml:"projection"`
	Queue      Queue      `yaml:"queue"`
}

// Embedding configures the embedding provider.
type Embedding struct {
	// Provider is "openai" or "fake".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// BaseURL overrides the OpenAI endpoint, for self-hosted compatible
	// servers. The API key is read from OPENAI_API_KEY.
	BaseURL string `yaml:"base_url"`
	// FakeDim is the vector width of the fake provider.
	FakeDim int `yaml:"fake_dim"`
}

// Projection carries the default projection parameters for new runs.
type Projection struct {
	NNeighbors  int     `yaml:"n_neighbors"`
	MinDist     float64 `yaml:"min_dist"`
	Metric      string  `yaml:"metric"`
	RandomState int     `yaml:"random_state"`
}

// Queue configures the background run queue.
type Queue struct {
	Workers int `yaml:"workers"`
	Depth   int `yaml:"depth"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	p := project.DefaultParams()
	return Config{
		DatabasePath: "cohortlens.db",
		UploadDir:    "uploads",
		ListenAddr:   ":8080",
		Embedding: Embedding{
			Provider: "openai",
			Model:    "sentence-transformers/all-MiniLM-L6-v2",
			FakeDim:  32,
		},
		Projection: Projection{
			NNeighbors:  p.NNeighbors,
			MinDist:     p.MinDist,
			Metric:      p.Metric,
			RandomState: p.RandomState,
		},
		Queue: Queue{Workers: 2, Depth: 32},
	}
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the fields no component can default for itself.
func (c Config) Validate() error {
	switch c.Embedding.Provider {
	case "openai", "fake":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", internalerr.ErrInvalidConfig, c.Embedding.Provider)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("%w: embedding model is required", internalerr.ErrInvalidConfig)
	}
	if c.UploadDir == "" {
		return fmt.Errorf("%w: upload_dir is required", internalerr.ErrInvalidConfig)
	}
	if c.Queue.Workers < 0 || c.Queue.Depth < 0 {
		return fmt.Errorf("%w: queue sizes must not be negative", internalerr.ErrInvalidConfig)
	}
	return nil
}

// Params returns the configured projection defaults.
func (c Config) Params() project.Params {
	return project.Params{
		NNeighbors:  c.Projection.NNeighbors,
		MinDist:     c.Projection.MinDist,
		Metric:      c.Projection.Metric,
		RandomState: c.Projection.RandomState,
	}
}
