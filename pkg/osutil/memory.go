// Package osutil exposes host resource limits.
package osutil

import (
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pbnjay/memory"
)

// cgroup v1 reports an unrestricted limit as the largest page aligned int64.
const cgroupV1Unlimited = math.MaxInt64 &^ 4095

var (
	cgroupV2LimitPath = "/sys/fs/cgroup/memory.max"
	cgroupV1LimitPath = "/sys/fs/cgroup/memory/memory.limit_in_bytes"

	hostMemory = memory.TotalMemory
)

// GetTotalMemory returns the memory available to the process, in bytes. When
// running under a cgroup memory limit lower than the host's total, the limit
// is returned.
func GetTotalMemory() uint64 {
	total := hostMemory()

	limit, ok := cgroupLimit()
	if ok && (total == 0 || limit < total) {
		return limit
	}
	return total
}

func cgroupLimit() (uint64, bool) {
	for _, path := range []string{cgroupV2LimitPath, cgroupV1LimitPath} {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		value := strings.TrimSpace(string(raw))
		if value == "max" {
			return 0, false
		}

		limit, err := strconv.ParseUint(value, 10, 64)
		if err != nil || limit == 0 || limit >= cgroupV1Unlimited {
			return 0, false
		}
		return limit, true
	}
	return 0, false
}
