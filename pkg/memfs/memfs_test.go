package memfs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	corefs "github.com/python-discord/snekbox/pkg/fs"
)

func requireRoot(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("memfs tests require root to mount tmpfs")
	}
}

func TestNewCreatesHomeAndOutput(t *testing.T) {
	requireRoot(t)
	root := t.TempDir()

	m, err := New(16*corefs.MiB, root, nil)
	require.NoError(t, err)
	defer m.Cleanup()

	info, err := os.Stat(m.Home())
	require.NoError(t, err)
	require.True(t, info.IsDir())

	info, err = os.Stat(m.Output())
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestCleanupIsIdempotent(t *testing.T) {
	requireRoot(t)
	root := t.TempDir()

	m, err := New(16*corefs.MiB, root, nil)
	require.NoError(t, err)

	require.NoError(t, m.Cleanup())
	require.NoError(t, m.Cleanup())

	_, err = os.Stat(m.Path())
	require.True(t, os.IsNotExist(err))
}

func TestEnumerateSkipsHiddenAndUnderscored(t *testing.T) {
	requireRoot(t)
	root := t.TempDir()

	m, err := New(16*corefs.MiB, root, nil)
	require.NoError(t, err)
	defer m.Cleanup()

	require.NoError(t, os.WriteFile(filepath.Join(m.Output(), "visible.txt"), []byte("a"), 0o666))
	require.NoError(t, os.WriteFile(filepath.Join(m.Output(), ".hidden"), []byte("b"), 0o666))
	require.NoError(t, os.WriteFile(filepath.Join(m.Output(), "_private"), []byte("c"), 0o666))

	files, err := m.Enumerate(EnumerateOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "visible.txt", files[0].Path)
}

func TestEnumerateExcludesSeedFiles(t *testing.T) {
	requireRoot(t)
	root := t.TempDir()

	m, err := New(16*corefs.MiB, root, nil)
	require.NoError(t, err)
	defer m.Cleanup()

	seedPath := filepath.Join(m.Output(), "seed.txt")
	require.NoError(t, os.WriteFile(seedPath, []byte("seed"), 0o666))
	info, err := os.Stat(seedPath)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(m.Output(), "result.txt"), []byte("r"), 0o666))

	files, err := m.Enumerate(EnumerateOptions{
		Limit:   10,
		Exclude: []Seed{{AbsPath: seedPath, ModTime: info.ModTime()}},
	})
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "result.txt", files[0].Path)
}

func TestEnumerateRespectsLimit(t *testing.T) {
	requireRoot(t)
	root := t.TempDir()

	m, err := New(16*corefs.MiB, root, nil)
	require.NoError(t, err)
	defer m.Cleanup()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(m.Output(), string(rune('a'+i))+".txt"), []byte("x"), 0o666))
	}

	files, err := m.Enumerate(EnumerateOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, files, 2)
}

func TestEnumerateDeadlineExceeded(t *testing.T) {
	requireRoot(t)
	root := t.TempDir()

	m, err := New(16*corefs.MiB, root, nil)
	require.NoError(t, err)
	defer m.Cleanup()

	require.NoError(t, os.WriteFile(filepath.Join(m.Output(), "a.txt"), []byte("x"), 0o666))

	_, err = m.Enumerate(EnumerateOptions{Limit: 10, Deadline: time.Now().Add(-time.Second)})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestEnumerateSortsLexically(t *testing.T) {
	requireRoot(t)
	root := t.TempDir()

	m, err := New(16*corefs.MiB, root, nil)
	require.NoError(t, err)
	defer m.Cleanup()

	require.NoError(t, os.WriteFile(filepath.Join(m.Output(), "b.txt"), []byte("x"), 0o666))
	require.NoError(t, os.WriteFile(filepath.Join(m.Output(), "a.txt"), []byte("x"), 0o666))

	files, err := m.Enumerate(EnumerateOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "a.txt", files[0].Path)
	require.Equal(t, "b.txt", files[1].Path)
}
