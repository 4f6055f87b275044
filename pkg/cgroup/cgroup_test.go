package cgroup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/python-discord/snekbox/pkg/jailerconfig"
)

func testLogger() *logrus.Entry {
	return logrus.NewEntry(logrus.New())
}

func TestProbeVersionPrefersV1WhenOnlyV1Present(t *testing.T) {
	dir := t.TempDir()
	memMount := filepath.Join(dir, "memory")
	require.NoError(t, os.MkdirAll(memMount, 0o755))

	cfg := &jailerconfig.Config{CgroupMemMount: memMount, Cgroupv2Mount: filepath.Join(dir, "unified")}
	require.Equal(t, V1, ProbeVersion(cfg, testLogger()))
}

func TestProbeVersionPrefersV2WhenOnlyV2Present(t *testing.T) {
	dir := t.TempDir()
	unified := filepath.Join(dir, "unified")
	require.NoError(t, os.MkdirAll(unified, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(unified, "cgroup.controllers"), []byte("cpu memory pids"), 0o644))

	cfg := &jailerconfig.Config{CgroupMemMount: filepath.Join(dir, "memory"), Cgroupv2Mount: unified}
	require.Equal(t, V2, ProbeVersion(cfg, testLogger()))
}

func TestProbeVersionHybridHonorsUseCgroupv2(t *testing.T) {
	dir := t.TempDir()
	memMount := filepath.Join(dir, "memory")
	unified := filepath.Join(dir, "unified")
	require.NoError(t, os.MkdirAll(memMount, 0o755))
	require.NoError(t, os.MkdirAll(unified, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(unified, "cgroup.controllers"), []byte("cpu"), 0o644))

	cfg := &jailerconfig.Config{CgroupMemMount: memMount, Cgroupv2Mount: unified, UseCgroupv2: true}
	require.Equal(t, V2, ProbeVersion(cfg, testLogger()))

	cfg.UseCgroupv2 = false
	require.Equal(t, V1, ProbeVersion(cfg, testLogger()))
}

func TestProbeVersionNeitherFallsBackToPreference(t *testing.T) {
	dir := t.TempDir()
	cfg := &jailerconfig.Config{
		CgroupMemMount: filepath.Join(dir, "memory"),
		Cgroupv2Mount:  filepath.Join(dir, "unified"),
		UseCgroupv2:    true,
	}
	require.Equal(t, V2, ProbeVersion(cfg, testLogger()))
}

func TestInitV1CreatesOnlyRequestedControllers(t *testing.T) {
	dir := t.TempDir()
	cpuMount := filepath.Join(dir, "cpu")
	memMount := filepath.Join(dir, "memory")
	require.NoError(t, os.MkdirAll(cpuMount, 0o755))
	require.NoError(t, os.MkdirAll(memMount, 0o755))

	cfg := &jailerconfig.Config{
		CgroupCPUMount:    cpuMount,
		CgroupCPUParent:   "NSJAIL",
		CgroupCPUMsPerSec: 100,
		CgroupMemMount:    memMount,
		CgroupMemParent:   "NSJAIL",
		// No memory limit set (swap max -1 is the unset value, as Load
		// defaults it): memory parent must not be created.
		CgroupMemSwapMax: -1,
	}

	require.NoError(t, InitV1(cfg))

	_, err := os.Stat(filepath.Join(cpuMount, "NSJAIL"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(memMount, "NSJAIL"))
	require.True(t, os.IsNotExist(err))
}

func TestInitV2MovesRootProcsAndEnablesControllers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cgroup.subtree_control"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cgroup.controllers"), []byte("cpu memory"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cgroup.procs"), []byte("123\n456\n"), 0o644))

	cfg := &jailerconfig.Config{Cgroupv2Mount: dir}
	require.NoError(t, InitV2(cfg))

	_, err := os.Stat(filepath.Join(dir, "init"))
	require.NoError(t, err)
}

func TestInitV2NoOpWhenAlreadySeeded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cgroup.subtree_control"), []byte("cpu memory"), 0o644))

	cfg := &jailerconfig.Config{Cgroupv2Mount: dir}
	require.NoError(t, InitV2(cfg))

	_, err := os.Stat(filepath.Join(dir, "init"))
	require.True(t, os.IsNotExist(err))
}
