// Package swap decides whether the jailer's swap-limit arguments should be
// suppressed for lack of kernel support, following spec §4.5. It is
// grounded directly on original_source/snekbox/utils/swap.py.
package swap

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/python-discord/snekbox/pkg/cgroup"
	"github.com/python-discord/snekbox/pkg/jailerconfig"
)

// ControllerExists reports whether the swap memory cgroup controller is
// available under the detected hierarchy version.
func ControllerExists(cfg *jailerconfig.Config, version cgroup.Version) (bool, error) {
	if version == cgroup.V1 {
		_, err := os.Stat(filepath.Join(cfg.CgroupMemMount, "memory.memsw.max_usage_in_bytes"))
		return err == nil, nil
	}

	child := filepath.Join(cfg.Cgroupv2Mount, "snekbox-temp-"+uuid.NewString())
	if err := os.Mkdir(child, 0o755); err != nil {
		return false, fmt.Errorf("creating probe cgroup %s: %w", child, err)
	}
	defer os.Remove(child)

	_, err := os.Stat(filepath.Join(child, "memory.swap.max"))
	return err == nil, nil
}

// IsEnabled reports whether the system has any swap space configured, per
// /proc/meminfo's SwapTotal field.
func IsEnabled(log *logrus.Entry) bool {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		log.Warn("couldn't determine if swap is on or off; assuming it's off")
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "SwapTotal:" {
			return fields[1] != "0"
		}
	}
	log.Warn("couldn't determine if swap is on or off; assuming it's off")
	return false
}

// ShouldIgnoreLimit reports whether the jailer invocation should neutralize
// its configured swap-limit arguments because the swap controller is
// unavailable on this kernel.
func ShouldIgnoreLimit(cfg *jailerconfig.Config, version cgroup.Version, log *logrus.Entry) (bool, error) {
	if cfg.CgroupMemMax <= 0 {
		return false, nil
	}
	if cfg.CgroupMemMemswMax <= 0 && cfg.CgroupMemSwapMax < 0 {
		log.Warn("memory is being limited, but swap memory is unlimited")
		return false, nil
	}

	exists, err := ControllerExists(cfg, version)
	if err != nil {
		return false, err
	}
	controllerMissing := !exists

	if IsEnabled(log) && controllerMissing {
		log.Warn("swap memory is available, but the swap memory controller is not enabled; " +
			"the jailer will not be able to limit memory effectively")
	}

	return controllerMissing, nil
}
