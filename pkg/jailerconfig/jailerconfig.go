// Package jailerconfig reads the jailer's own text-format configuration
// file and exposes the subset of fields the core needs to probe cgroups,
// decide swap policy, and build the jailer's argv.
//
// The jailer's configuration format is a flat key: value grammar (the same
// shape protobuf's text format takes for scalar fields, without requiring
// a generated-message dependency the jailer binary itself does not ship).
// Parsing follows it line by line, the same way the teacher's own
// configuration loader does for its TOML file. Nested fields are read only
// as dotted keys ("exec_bin.path: ..."); nested-message blocks
// ("exec_bin { ... }") are not parsed, and the fields inside them are
// ignored.
package jailerconfig

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the immutable, once-parsed view of the jailer's configuration
// file (spec.md §3's "JailerConfig" entity).
type Config struct {
	ExecBinPath string
	ExecBinArg  []string

	CgroupMemMount    string
	CgroupPidsMount   string
	CgroupNetClsMount string
	CgroupCPUMount    string

	CgroupMemParent    string
	CgroupPidsParent   string
	CgroupNetClsParent string
	CgroupCPUParent    string

	CgroupMemMax        int64
	CgroupMemMemswMax   int64
	CgroupMemSwapMax    int64
	CgroupPidsMax       int64
	CgroupNetClsClassID int64
	CgroupCPUMsPerSec   int64

	UseCgroupv2   bool
	Cgroupv2Mount string
}

// Load parses the jailer configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening jailer config %s: %w", path, err)
	}
	defer f.Close()

	cfg := &Config{
		CgroupMemSwapMax: -1,
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		value = strings.Trim(value, `"`)

		if err := apply(cfg, key, value); err != nil {
			return nil, fmt.Errorf("parsing jailer config line %q: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func apply(cfg *Config, key, value string) error {
	switch key {
	case "exec_bin.path":
		cfg.ExecBinPath = value
	case "exec_bin.arg":
		cfg.ExecBinArg = append(cfg.ExecBinArg, value)
	case "cgroup_mem_mount":
		cfg.CgroupMemMount = value
	case "cgroup_pids_mount":
		cfg.CgroupPidsMount = value
	case "cgroup_net_cls_mount":
		cfg.CgroupNetClsMount = value
	case "cgroup_cpu_mount":
		cfg.CgroupCPUMount = value
	case "cgroup_mem_parent":
		cfg.CgroupMemParent = value
	case "cgroup_pids_parent":
		cfg.CgroupPidsParent = value
	case "cgroup_net_cls_parent":
		cfg.CgroupNetClsParent = value
	case "cgroup_cpu_parent":
		cfg.CgroupCPUParent = value
	case "cgroup_mem_max":
		return assignInt64(&cfg.CgroupMemMax, value)
	case "cgroup_mem_memsw_max":
		return assignInt64(&cfg.CgroupMemMemswMax, value)
	case "cgroup_mem_swap_max":
		return assignInt64(&cfg.CgroupMemSwapMax, value)
	case "cgroup_pids_max":
		return assignInt64(&cfg.CgroupPidsMax, value)
	case "cgroup_net_cls_classid":
		return assignInt64(&cfg.CgroupNetClsClassID, value)
	case "cgroup_cpu_ms_per_sec":
		return assignInt64(&cfg.CgroupCPUMsPerSec, value)
	case "use_cgroupv2":
		cfg.UseCgroupv2 = value == "true"
	case "cgroupv2_mount":
		cfg.Cgroupv2Mount = value
	}
	return nil
}

func assignInt64(dst *int64, value string) error {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("jailerconfig.Config{ExecBinPath: %q, UseCgroupv2: %v}", c.ExecBinPath, c.UseCgroupv2)
}
