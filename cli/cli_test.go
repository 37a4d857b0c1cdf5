package cli_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoardstore/hoard/cli"
)

// captureStdout redirects os.Stdout for the duration of fn and returns
// whatever was written to it. Command Run functions print directly to
// os.Stdout, so tests must intercept at the file-descriptor level.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)

	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return buf.String()
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	return captureStdout(t, func() {
		cli.RootCmd.SetArgs(args)
		require.NoError(t, cli.RootCmd.Execute())
	})
}

func TestWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	repoPath := filepath.Join(dir, "r.hoard")
	inPath := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(inPath, []byte("hello cli"), 0o644))

	out := run(t, "write", repoPath, inPath)
	digestHex := strings.TrimSpace(out)
	require.Len(t, digestHex, 64)

	readOut := run(t, "read", repoPath, digestHex)
	require.Equal(t, "hello cli", readOut)
}

func TestWriteLongThenReadLong(t *testing.T) {
	dir := t.TempDir()
	repoPath := filepath.Join(dir, "r.hoard")
	inPath := filepath.Join(dir, "big.bin")

	payload := bytes.Repeat([]byte("0123456789"), 50000) // 500 KB, multi-leaf
	require.NoError(t, os.WriteFile(inPath, payload, 0o644))

	out := run(t, "writelong", repoPath, inPath)
	rootHex := strings.TrimSpace(out)
	require.Len(t, rootHex, 64)

	readOut := run(t, "readlong", repoPath, rootHex)
	require.Equal(t, string(payload), readOut)
}

func TestConfigFlagOverridesChunkerParams(t *testing.T) {
	dir := t.TempDir()
	repoPath := filepath.Join(dir, "r.hoard")
	inPath := filepath.Join(dir, "big.bin")
	cfgPath := filepath.Join(dir, "hoard.yaml")

	payload := bytes.Repeat([]byte("abcdefgh"), 20000) // 160 KB
	require.NoError(t, os.WriteFile(inPath, payload, 0o644))
	require.NoError(t, os.WriteFile(cfgPath, []byte("version: \"1.0\"\nchunker:\n  bufferpot: 8\n  moduluspot: 10\n"), 0o644))

	out := captureStdout(t, func() {
		cli.RootCmd.SetArgs([]string{"--config", cfgPath, "writelong", repoPath, inPath})
		require.NoError(t, cli.RootCmd.Execute())
	})
	rootHex := strings.TrimSpace(out)
	require.Len(t, rootHex, 64)

	// Clear --config before later tests run, since cobra's persistent
	// flag value otherwise carries over to the next Execute call.
	readOut := captureStdout(t, func() {
		cli.RootCmd.SetArgs([]string{"--config", "", "readlong", repoPath, rootHex})
		require.NoError(t, cli.RootCmd.Execute())
	})
	require.Equal(t, string(payload), readOut)
}

func TestPackDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b"), []byte("beta"), 0o644))

	outPack := filepath.Join(t.TempDir(), "out.pack")
	out := run(t, "pack", dir, outPack)
	require.Contains(t, out, "2 blocks packed")

	info, err := os.Stat(outPack)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}
