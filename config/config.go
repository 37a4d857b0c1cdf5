// Package config provides a versioned, YAML-backed configuration for
// tunable parameters that affect performance but never the on-disk wire
// format: chunker window/modulus, compression effort and fallback
// threshold, and the packfile reader's entry cache size. Every default
// here matches the corresponding wire constant in chunk, codec, and pack
// exactly; widening a tunable never changes what bytes land on disk.
//
// Environment variables may override configuration parameters other than
// Version, following the scheme HOARD_SECTION_FIELD, e.g.
// Config.Chunker.BufferPot may be overridden by HOARD_CHUNKER_BUFFERPOT.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/hoardstore/hoard/chunk"
	"github.com/hoardstore/hoard/codec"
)

// Version is the configuration document's format version. Any version other
// than CurrentVersion refuses to load rather than silently guessing intent.
type Version string

// CurrentVersion is the only Version this package currently parses.
const CurrentVersion Version = "1.0"

// Config is the top-level configuration document.
type Config struct {
	// Version selects the configuration document format.
	Version Version `yaml:"version"`

	// Log configures the logging subsystem.
	Log Log `yaml:"log,omitempty"`

	// Chunker configures the content-defined chunker's window/modulus.
	Chunker Chunker `yaml:"chunker,omitempty"`

	// Compression configures the block compression codec.
	Compression Compression `yaml:"compression,omitempty"`

	// Pack configures packfile reader behavior.
	Pack Pack `yaml:"pack,omitempty"`
}

// Log mirrors the logrus level/formatter knobs a teacher-style service
// exposes.
type Log struct {
	// Level is one of logrus's level names: "panic", "fatal", "error",
	// "warn", "info", "debug", "trace".
	Level string `yaml:"level,omitempty"`

	// Formatter selects between "text" and "json" logrus formatters.
	Formatter string `yaml:"formatter,omitempty"`
}

// Chunker configures the rolling-sum content-defined chunker.
type Chunker struct {
	// BufferPot is log2 of the chunker's ring buffer size.
	BufferPot uint `yaml:"bufferpot,omitempty"`

	// ModulusPot is log2 of the chunker's boundary-test modulus,
	// controlling the average chunk size (2^ModulusPot bytes).
	ModulusPot uint `yaml:"moduluspot,omitempty"`
}

// Compression configures the block compression codec.
type Compression struct {
	// Level is the flate compression level, 1 (fastest) through 9 (best).
	Level int `yaml:"level,omitempty"`

	// PredictabilityThreshold is the order-1 predictability score below
	// which a block is stored raw instead of compressed. Must be in
	// [0, 1].
	PredictabilityThreshold float64 `yaml:"predictabilitythreshold,omitempty"`
}

// Pack configures packfile reader behavior.
type Pack struct {
	// CacheBits is log2 of the packfile reader's direct-mapped entry
	// cache size.
	CacheBits uint `yaml:"cachebits,omitempty"`
}

// Default returns a Config populated with the same values the chunk,
// codec, and pack packages use when no configuration is supplied at all.
func Default() Config {
	return Config{
		Version: CurrentVersion,
		Log: Log{
			Level:     "info",
			Formatter: "text",
		},
		Chunker: Chunker{
			BufferPot:  chunk.DefaultBufferPot,
			ModulusPot: chunk.DefaultModulusPot,
		},
		Compression: Compression{
			Level:                   6,
			PredictabilityThreshold: codec.PredictabilityThreshold,
		},
		Pack: Pack{
			CacheBits: 16,
		},
	}
}

// Parse reads a YAML configuration document from rd, applying it on top
// of Default, then layers in any HOARD_* environment variable overrides.
func Parse(rd io.Reader) (*Config, error) {
	cfg := Default()

	in, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	if len(strings.TrimSpace(string(in))) > 0 {
		if err := yaml.Unmarshal(in, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}
	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}
	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("config: unsupported version %q, expected %q", cfg.Version, CurrentVersion)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the tunables are within ranges the chunk, codec,
// and pack packages can actually honor.
func (c *Config) Validate() error {
	if c.Chunker.ModulusPot == 0 || c.Chunker.ModulusPot > 24 {
		return fmt.Errorf("config: chunker.moduluspot %d out of range", c.Chunker.ModulusPot)
	}
	if c.Chunker.BufferPot == 0 || c.Chunker.BufferPot > c.Chunker.ModulusPot {
		return fmt.Errorf("config: chunker.bufferpot %d out of range", c.Chunker.BufferPot)
	}
	if c.Compression.Level < 1 || c.Compression.Level > 9 {
		return fmt.Errorf("config: compression.level %d out of range [1,9]", c.Compression.Level)
	}
	if c.Compression.PredictabilityThreshold < 0 || c.Compression.PredictabilityThreshold > 1 {
		return fmt.Errorf("config: compression.predictabilitythreshold %f out of range [0,1]", c.Compression.PredictabilityThreshold)
	}
	if c.Pack.CacheBits == 0 || c.Pack.CacheBits > 24 {
		return fmt.Errorf("config: pack.cachebits %d out of range", c.Pack.CacheBits)
	}
	return nil
}

// envOverride describes one HOARD_* environment variable and how to
// apply it to a Config.
type envOverride struct {
	name  string
	apply func(cfg *Config, value string) error
}

var envOverrides = []envOverride{
	{"HOARD_LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"HOARD_LOG_FORMATTER", func(c *Config, v string) error { c.Log.Formatter = v; return nil }},
	{"HOARD_CHUNKER_BUFFERPOT", func(c *Config, v string) error { return setUint(&c.Chunker.BufferPot, v) }},
	{"HOARD_CHUNKER_MODULUSPOT", func(c *Config, v string) error { return setUint(&c.Chunker.ModulusPot, v) }},
	{"HOARD_COMPRESSION_LEVEL", func(c *Config, v string) error { return setInt(&c.Compression.Level, v) }},
	{"HOARD_COMPRESSION_PREDICTABILITYTHRESHOLD", func(c *Config, v string) error { return setFloat(&c.Compression.PredictabilityThreshold, v) }},
	{"HOARD_PACK_CACHEBITS", func(c *Config, v string) error { return setUint(&c.Pack.CacheBits, v) }},
}

func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		if v, ok := os.LookupEnv(o.name); ok {
			// Malformed overrides are ignored rather than fatal: an
			// operator's typo in an environment variable should not take
			// down a process that otherwise has a valid config file.
			_ = o.apply(cfg, v)
		}
	}
}

func setUint(dst *uint, v string) error {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return err
	}
	*dst = uint(n)
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, v string) error {
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}
