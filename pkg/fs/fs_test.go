package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMountUnmountTmpfs(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("mounting tmpfs requires root")
	}

	dir := t.TempDir()
	target := filepath.Join(dir, "mnt")
	require.NoError(t, os.Mkdir(target, 0o777))

	err := Mount("", target, "tmpfs", map[string]string{"size": "1048576"})
	require.NoError(t, err)

	// Mounting again on the same target must fail.
	err = Mount("", target, "tmpfs", map[string]string{"size": "1048576"})
	require.Error(t, err)

	require.NoError(t, Unmount(target, MNTDetach))

	// Unmounting a non-mount-point must fail.
	err = Unmount(target, MNTDetach)
	require.Error(t, err)
}

func TestUnmountNotAMountPoint(t *testing.T) {
	dir := t.TempDir()
	err := Unmount(dir, MNTDetach)
	require.Error(t, err)
}

func TestSizeMultipliers(t *testing.T) {
	require.Equal(t, Size(1024), KiB)
	require.Equal(t, Size(1024*1024), MiB)
	require.Equal(t, Size(1024*1024*1024), GiB)
	require.Equal(t, Size(1024*1024*1024*1024), TiB)
}
