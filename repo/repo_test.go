package repo_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoardstore/hoard/digest"
	"github.com/hoardstore/hoard/repo"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.hoard")
	r, err := repo.Open(path, true)
	require.NoError(t, err)
	defer r.Close()

	d, err := r.Write([]byte("payload bytes"))
	require.NoError(t, err)

	got, ok, err := r.Read(d)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "payload bytes", string(got))
}

func TestDedupDoesNotDuplicateOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.hoard")
	r, err := repo.Open(path, true)
	require.NoError(t, err)
	defer r.Close()

	d1, err := r.Write([]byte("same"))
	require.NoError(t, err)
	info1, err := os.Stat(path)
	require.NoError(t, err)
	d2, err := r.Write([]byte("same"))
	require.NoError(t, err)
	require.Equal(t, d1, d2)
	require.Equal(t, 1, r.Len())
	info2, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, info1.Size(), info2.Size())
}

func TestSyncIsNoOpWithoutNewWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.hoard")
	r, err := repo.Open(path, true)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Sync())
	off := r.LastCommitOffset()
	require.NoError(t, r.Sync())
	require.Equal(t, off, r.LastCommitOffset())
}

func TestReadMissingIsAbsentNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.hoard")
	r, err := repo.Open(path, true)
	require.NoError(t, err)
	defer r.Close()

	_, ok, err := r.Read(digest.Sum([]byte("never written")))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCrashRecoveryTruncatesUncommittedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.hoard")

	r, err := repo.Open(path, true)
	require.NoError(t, err)

	_, err = r.Write([]byte("A"))
	require.NoError(t, err)
	_, err = r.Write([]byte("B"))
	require.NoError(t, err)
	require.NoError(t, r.Sync())
	committedLen := r.LastCommitOffset()

	_, err = r.Write([]byte("C"))
	require.NoError(t, err)
	require.NoError(t, r.Close())

	// Simulate a crash mid-payload: truncate the last byte of C's record.
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-1))

	r2, err := repo.Open(path, true)
	require.NoError(t, err)
	defer r2.Close()

	require.Equal(t, 2, r2.Len())
	require.Equal(t, committedLen, r2.LastCommitOffset())

	info2, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, committedLen, info2.Size())
}

func TestReadOnlyRejectsWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.hoard")
	w, err := repo.Open(path, true)
	require.NoError(t, err)
	_, err = w.Write([]byte("seed"))
	require.NoError(t, err)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	r, err := repo.Open(path, false)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Write([]byte("nope"))
	require.Error(t, err)
}

func TestOversizeBlockRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.hoard")
	r, err := repo.Open(path, true)
	require.NoError(t, err)
	defer r.Close()

	big := make([]byte, repo.MaxBlockSize+1)
	_, err = r.Write(big)
	require.Error(t, err)
}

func TestCloseIsOnceOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.hoard")
	r, err := repo.Open(path, true)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Error(t, r.Close())
}
