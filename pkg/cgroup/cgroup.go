// Package cgroup probes the host's cgroup hierarchy version and prepares
// the parent cgroups the jailer expects to already exist, following spec
// §4.4. Its raw-file style is grounded directly on the teacher's
// setupCgroupV1/setupCgroupV2 in pkg/vm/jailer.go, which never reaches for
// a cgroups library either.
package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/python-discord/snekbox/pkg/jailerconfig"
)

// Version is the detected cgroup hierarchy in use on this host.
type Version int

const (
	V1 Version = iota + 1
	V2
)

func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return "unknown"
	}
}

// ProbeVersion inspects the filesystem for evidence of v1 and v2 cgroup
// mounts and applies the tie-break rules in spec §4.4.
func ProbeVersion(cfg *jailerconfig.Config, log *logrus.Entry) Version {
	v1Present := exists(cfg.CgroupMemMount) || exists(cfg.CgroupPidsMount) ||
		exists(cfg.CgroupNetClsMount) || exists(cfg.CgroupCPUMount)
	v2Present := exists(filepath.Join(cfg.Cgroupv2Mount, "cgroup.controllers"))

	switch {
	case v1Present && v2Present:
		if cfg.UseCgroupv2 {
			return V2
		}
		return V1
	case v1Present:
		if cfg.UseCgroupv2 {
			log.Warn("cgroupv2 requested but only a v1 hierarchy was found; using v1")
		}
		return V1
	case v2Present:
		return V2
	default:
		log.Warn("could not detect any cgroup hierarchy; falling back to configured preference")
		if cfg.UseCgroupv2 {
			return V2
		}
		return V1
	}
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// InitV1 creates a per-controller parent directory for each controller
// whose defining field is explicitly set in cfg, since the jailer refuses
// controllers whose parent directory is absent.
func InitV1(cfg *jailerconfig.Config) error {
	type controller struct {
		mount, parent string
		wanted        bool
	}
	controllers := []controller{
		{cfg.CgroupCPUMount, cfg.CgroupCPUParent, cfg.CgroupCPUMsPerSec > 0},
		{cfg.CgroupMemMount, cfg.CgroupMemParent, cfg.CgroupMemMax > 0 || cfg.CgroupMemMemswMax > 0 || cfg.CgroupMemSwapMax >= 0},
		{cfg.CgroupNetClsMount, cfg.CgroupNetClsParent, cfg.CgroupNetClsClassID > 0},
		{cfg.CgroupPidsMount, cfg.CgroupPidsParent, cfg.CgroupPidsMax > 0},
	}

	for _, c := range controllers {
		if !c.wanted || c.mount == "" || c.parent == "" {
			continue
		}
		dir := filepath.Join(c.mount, c.parent)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating cgroup v1 parent %s: %w", dir, err)
		}
	}
	return nil
}

// InitV2 seeds subtree_control on the root cgroup, moving existing
// processes into a child "init" cgroup first since a controller cannot be
// enabled on a non-empty cgroup.
func InitV2(cfg *jailerconfig.Config) error {
	root := cfg.Cgroupv2Mount
	subtreeControl := filepath.Join(root, "cgroup.subtree_control")

	current, err := os.ReadFile(subtreeControl)
	if err != nil {
		return fmt.Errorf("reading %s: %w", subtreeControl, err)
	}
	if len(strings.Fields(string(current))) > 0 {
		return nil
	}

	initDir := filepath.Join(root, "init")
	if err := os.MkdirAll(initDir, 0o755); err != nil {
		return fmt.Errorf("creating init cgroup %s: %w", initDir, err)
	}

	if err := movePIDs(filepath.Join(root, "cgroup.procs"), filepath.Join(initDir, "cgroup.procs")); err != nil {
		return err
	}

	available, err := os.ReadFile(filepath.Join(root, "cgroup.controllers"))
	if err != nil {
		return fmt.Errorf("reading %s/cgroup.controllers: %w", root, err)
	}
	for _, controller := range strings.Fields(string(available)) {
		if err := os.WriteFile(subtreeControl, []byte("+"+controller), 0o644); err != nil {
			return fmt.Errorf("enabling controller %s on %s: %w", controller, subtreeControl, err)
		}
	}
	return nil
}

func movePIDs(from, to string) error {
	data, err := os.ReadFile(from)
	if err != nil {
		return fmt.Errorf("reading %s: %w", from, err)
	}
	for _, pid := range strings.Fields(string(data)) {
		if err := os.WriteFile(to, []byte(pid), 0o644); err != nil {
			return fmt.Errorf("moving pid %s from %s to %s: %w", pid, from, to, err)
		}
	}
	return nil
}
