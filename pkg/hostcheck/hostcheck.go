// Package hostcheck compares process specs with the host they are about to run on.
// Findings are advisory: nothing here makes a spec invalid.
package hostcheck

import (
	"fmt"

	"github.com/cywhale/woa23/pkg/bytesize"
	"github.com/cywhale/woa23/pkg/ecosystem"
	"github.com/cywhale/woa23/pkg/logging"

	"github.com/shirou/gopsutil/v3/mem"
)

// MemoryFunc reports the total physical memory of the host in bytes
type MemoryFunc func() (uint64, error)

// HostMemory reads total physical memory through gopsutil
func HostMemory() (uint64, error) {
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vmStat.Total, nil
}

type Checker struct {
	totalMemory MemoryFunc
	logger      logging.Logger
}

// NewChecker uses HostMemory when totalMemory is nil
func NewChecker(totalMemory MemoryFunc, logger logging.Logger) *Checker {
	if totalMemory == nil {
		totalMemory = HostMemory
	}
	return &Checker{
		totalMemory: totalMemory,
		logger:      logging.OrNop(logger),
	}
}

// CheckSpec returns warnings for spec. A ceiling above physical memory can
// never trigger, so the supervisor would not restart a leaking process.
func (c *Checker) CheckSpec(spec ecosystem.ProcessSpec) []string {
	if spec.MaxMemoryRestart.IsZero() {
		return nil
	}

	total, err := c.totalMemory()
	if err != nil {
		c.logger.Debugf("Host memory unavailable, app: %s, error: %v", spec.Name, err)
		return []string{fmt.Sprintf("app %s: cannot read host memory to compare max_memory_restart: %v", spec.Name, err)}
	}
	if total == 0 || spec.MaxMemoryRestart.Bytes() <= total {
		return nil
	}

	warning := fmt.Sprintf("app %s: max_memory_restart %s exceeds host memory %s",
		spec.Name, spec.MaxMemoryRestart, describeTotal(total))
	c.logger.Warnf("Memory ceiling above host memory, app: %s, ceiling: %s, total: %d",
		spec.Name, spec.MaxMemoryRestart, total)
	return []string{warning}
}

func (c *Checker) CheckEcosystem(eco *ecosystem.Ecosystem) []string {
	var warnings []string
	for _, spec := range eco.Apps() {
		warnings = append(warnings, c.CheckSpec(spec)...)
	}
	return warnings
}

// describeTotal prints whole units when exact, bytes otherwise
func describeTotal(total uint64) string {
	size := bytesize.ByteSize(total)
	if s := size.String(); s != fmt.Sprint(total) {
		return s
	}
	return fmt.Sprintf("%d bytes", total)
}
