package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hupe1980/plsago"
	"github.com/hupe1980/plsago/codec"
	"github.com/hupe1980/plsago/internal/fpe"
	"github.com/hupe1980/plsago/internal/frame"
	"gopkg.in/yaml.v3"
)

// Settings is everything the command line controls. The YAML config file
// uses the same keys as the flags.
type Settings struct {
	plsago.Config `yaml:",inline"`

	Base    string `yaml:"base"`
	Cooccur string `yaml:"cooccur"`
	Debug   bool   `yaml:"debug"`

	LogFormat string `yaml:"log_format"`

	Workers     int      `yaml:"workers"`
	Rank        int      `yaml:"rank"`
	Peers       []string `yaml:"peers"`
	Compression string   `yaml:"compression"`
	RunID       string   `yaml:"run_id"`

	Store    string `yaml:"store"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
	Insecure bool   `yaml:"insecure"`

	History     string `yaml:"history"`
	MetricsAddr string `yaml:"metrics_addr"`
	FaultPolicy string `yaml:"fault_policy"`
	MemoryLimit int64  `yaml:"memory_limit"`
	IOLimit     int64  `yaml:"io_limit"`
	Codec       string `yaml:"codec"`
}

// DefaultSettings returns the defaults of every flag.
func DefaultSettings() Settings {
	return Settings{
		Config:      plsago.DefaultConfig(),
		LogFormat:   "text",
		Workers:     1,
		Compression: "none",
		Store:       "local",
		FaultPolicy: "count",
		Codec:       "go-json",
	}
}

// LoadSettingsFile reads YAML settings on top of s.
func LoadSettingsFile(path string, s *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return plsago.NewConfigError("config", "cannot read config file", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return plsago.NewConfigError("config", "invalid YAML", err)
	}
	return nil
}

// Validate checks the settings that the algorithmic Config does not cover.
func (s *Settings) Validate() error {
	if s.Cooccur == "" {
		return plsago.NewConfigError("cooccur", "co-occurrence file is required", nil)
	}
	if s.Base == "" && !s.SuppressOutput {
		return plsago.NewConfigError("base", "output base name is required unless --nooutput is set", nil)
	}
	if s.Workers < 1 {
		return plsago.NewConfigError("workers", "must be positive", nil)
	}
	if len(s.Peers) > 0 {
		if s.Rank < 0 || s.Rank >= len(s.Peers) {
			return plsago.NewConfigError("rank", fmt.Sprintf("must be in [0, %d)", len(s.Peers)), nil)
		}
	} else if s.Rank != 0 {
		return plsago.NewConfigError("rank", "requires --peers", nil)
	}
	if _, err := frame.ParseCompression(s.Compression); err != nil {
		return plsago.NewConfigError("compression", "unknown compression", err)
	}
	if _, err := fpe.ParsePolicy(s.FaultPolicy); err != nil {
		return plsago.NewConfigError("fault_policy", "unknown policy", err)
	}
	switch s.Store {
	case "local":
	case "s3", "minio":
		if s.Bucket == "" {
			return plsago.NewConfigError("bucket", "required for store "+s.Store, nil)
		}
		if s.Store == "minio" && s.Endpoint == "" {
			return plsago.NewConfigError("endpoint", "required for store minio", nil)
		}
	default:
		return plsago.NewConfigError("store", "must be local, s3 or minio", nil)
	}
	switch strings.ToLower(s.LogFormat) {
	case "text", "json":
	default:
		return plsago.NewConfigError("log_format", "must be text or json", nil)
	}
	if _, ok := codec.ByName(s.Codec); !ok {
		return plsago.NewConfigError("codec", "must be json or go-json", nil)
	}
	if s.MemoryLimit < 0 || s.IOLimit < 0 {
		return plsago.NewConfigError("limits", "must not be negative", nil)
	}
	cfg, _ := s.Config.ForWorkers(s.WorkerCount())
	return cfg.Validate()
}

// WorkerCount returns the number of workers of the run.
func (s *Settings) WorkerCount() int {
	if len(s.Peers) > 0 {
		return len(s.Peers)
	}
	return s.Workers
}
