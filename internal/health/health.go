// Package health implements a host resource check: Check reports whether
// host CPU or memory usage is over the given thresholds. cmd/gatewayclient
// runs it once before the first dial and only logs a warning when the host
// is degraded; the Stream Client Service does not consult it, and no
// (re)connect attempt is refused because of it. Grounded on the teacher's ResourceGuard
// (internal/shared/limits/resource_guard.go) and platform/cgroup_cpu.go,
// ported from cgroup-file parsing to shirou/gopsutil/v3's cross-platform
// sampling — this module runs as a client process, not a container-hosted
// server under a cgroup CPU quota, so host-relative percentages are the
// more portable signal.
package health

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Thresholds bounds how loaded the host may be before Check starts
// reporting degradation. Zero values disable the corresponding check.
type Thresholds struct {
	MaxCPUPercent    float64
	MaxMemoryPercent float64
}

// Report is the outcome of one Check call.
type Report struct {
	CPUPercent    float64
	MemoryPercent float64
	Degraded      bool
	Reason        string
}

// Check samples host CPU usage since the previous CPU sample and current
// memory usage, and compares them against t. It never returns an error that should abort a
// connect attempt — sampling failures are reported as a non-degraded,
// best-effort Report, since a health check gone blind is not a reason to
// stop connecting.
func Check(t Thresholds) Report {
	var rep Report

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		rep.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		rep.MemoryPercent = vm.UsedPercent
	}

	switch {
	case t.MaxCPUPercent > 0 && rep.CPUPercent > t.MaxCPUPercent:
		rep.Degraded = true
		rep.Reason = fmt.Sprintf("host CPU at %.1f%%, over the %.1f%% pre-dial threshold", rep.CPUPercent, t.MaxCPUPercent)
	case t.MaxMemoryPercent > 0 && rep.MemoryPercent > t.MaxMemoryPercent:
		rep.Degraded = true
		rep.Reason = fmt.Sprintf("host memory at %.1f%%, over the %.1f%% pre-dial threshold", rep.MemoryPercent, t.MaxMemoryPercent)
	}
	return rep
}
