package config_test

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoardstore/hoard/config"
)

func TestDefaultMatchesWireConstants(t *testing.T) {
	d := config.Default()
	require.Equal(t, config.CurrentVersion, d.Version)
	require.Equal(t, uint(10), d.Chunker.BufferPot)
	require.Equal(t, uint(12), d.Chunker.ModulusPot)
	require.Equal(t, uint(16), d.Pack.CacheBits)
	require.NoError(t, d.Validate())
}

func TestParseEmptyDocumentYieldsDefaults(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, config.Default(), *cfg)
}

func TestParseOverridesSelectedFields(t *testing.T) {
	doc := `
version: "1.0"
chunker:
  bufferpot: 8
  moduluspot: 14
`
	cfg, err := config.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, uint(8), cfg.Chunker.BufferPot)
	require.Equal(t, uint(14), cfg.Chunker.ModulusPot)
	// Unspecified fields keep their defaults.
	require.Equal(t, 6, cfg.Compression.Level)
}

func TestParseRejectsWrongVersion(t *testing.T) {
	_, err := config.Parse(strings.NewReader(`version: "2.0"`))
	require.Error(t, err)
}

func TestParseRejectsOutOfRangeChunkerParams(t *testing.T) {
	_, err := config.Parse(strings.NewReader("chunker:\n  bufferpot: 20\n  moduluspot: 12\n"))
	require.Error(t, err)
}

func TestEnvOverrideTakesPriorityOverFile(t *testing.T) {
	t.Setenv("HOARD_CHUNKER_MODULUSPOT", "15")
	cfg, err := config.Parse(strings.NewReader("chunker:\n  moduluspot: 11\n"))
	require.NoError(t, err)
	require.Equal(t, uint(15), cfg.Chunker.ModulusPot)
}

func TestMalformedEnvOverrideIsIgnored(t *testing.T) {
	require.NoError(t, os.Setenv("HOARD_COMPRESSION_LEVEL", "not-a-number"))
	defer os.Unsetenv("HOARD_COMPRESSION_LEVEL")

	cfg, err := config.Parse(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, 6, cfg.Compression.Level)
}
