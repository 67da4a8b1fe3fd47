package system

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// HostStats is a snapshot of host and process resources for the
// performance report.
type HostStats struct {
	LogicalCPUs  int
	TotalMemMB   uint64
	UsedMemPct   float64
	ProcessRSSMB uint64
	ProcessCPU   float64
}

// CollectHostStats собирает то, что удалось получить; недоступные
// метрики остаются нулевыми.
func CollectHostStats() HostStats {
	var s HostStats
	if n, err := cpu.Counts(true); err == nil {
		s.LogicalCPUs = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.TotalMemMB = vm.Total / (1 << 20)
		s.UsedMemPct = vm.UsedPercent
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := p.MemoryInfo(); err == nil {
			s.ProcessRSSMB = info.RSS / (1 << 20)
		}
		if pct, err := p.CPUPercent(); err == nil {
			s.ProcessCPU = pct
		}
	}
	return s
}

func (s HostStats) String() string {
	return fmt.Sprintf("CPUs: %d | RAM: %d MB (%.1f%% used) | RSS: %d MB | CPU: %.1f%%",
		s.LogicalCPUs, s.TotalMemMB, s.UsedMemPct, s.ProcessRSSMB, s.ProcessCPU)
}
