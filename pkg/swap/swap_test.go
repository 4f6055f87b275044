package swap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/python-discord/snekbox/pkg/cgroup"
	"github.com/python-discord/snekbox/pkg/jailerconfig"
)

func testLogger() *logrus.Entry {
	return logrus.NewEntry(logrus.New())
}

func TestControllerExistsV1(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "memory.memsw.max_usage_in_bytes"), []byte("0"), 0o644))

	cfg := &jailerconfig.Config{CgroupMemMount: dir}
	exists, err := ControllerExists(cfg, cgroup.V1)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestControllerExistsV1Missing(t *testing.T) {
	cfg := &jailerconfig.Config{CgroupMemMount: t.TempDir()}
	exists, err := ControllerExists(cfg, cgroup.V1)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestShouldIgnoreLimitFalseWhenNoMemLimit(t *testing.T) {
	cfg := &jailerconfig.Config{CgroupMemMax: 0}
	ignore, err := ShouldIgnoreLimit(cfg, cgroup.V1, testLogger())
	require.NoError(t, err)
	require.False(t, ignore)
}

func TestShouldIgnoreLimitFalseWhenSwapUnlimited(t *testing.T) {
	cfg := &jailerconfig.Config{CgroupMemMax: 1024, CgroupMemMemswMax: 0, CgroupMemSwapMax: -1}
	ignore, err := ShouldIgnoreLimit(cfg, cgroup.V1, testLogger())
	require.NoError(t, err)
	require.False(t, ignore)
}

func TestShouldIgnoreLimitTrueWhenControllerMissing(t *testing.T) {
	cfg := &jailerconfig.Config{
		CgroupMemMount:    t.TempDir(),
		CgroupMemMax:      1024,
		CgroupMemMemswMax: 1024,
	}
	ignore, err := ShouldIgnoreLimit(cfg, cgroup.V1, testLogger())
	require.NoError(t, err)
	require.True(t, ignore)
}
