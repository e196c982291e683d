package health

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessFacts is a snapshot of the running process's resource usage,
// gathered alongside the quote-sync check as separate diagnostic data.
type ProcessFacts struct {
	CPUPercent    float64
	MemoryRSSMB   float64
	SystemMemUsed float64
}

// ProcessGatherer reads process/system resource facts via gopsutil.
type ProcessGatherer struct {
	pid int32
	log zerolog.Logger
}

// NewProcessGatherer builds a gatherer for the current process.
func NewProcessGatherer(pid int32, log zerolog.Logger) *ProcessGatherer {
	return &ProcessGatherer{pid: pid, log: log.With().Str("component", "health_process").Logger()}
}

// Gather reads the current process/system facts. Failures to read any one
// metric are logged and leave that field zero rather than aborting the whole
// snapshot; this is a diagnostic aid, not load-bearing for core behavior.
func (g *ProcessGatherer) Gather(ctx context.Context) ProcessFacts {
	var facts ProcessFacts

	proc, err := process.NewProcess(g.pid)
	if err != nil {
		g.log.Warn().Err(err).Msg("could not open process handle for health facts")
		return facts
	}

	if pct, err := proc.CPUPercentWithContext(ctx); err == nil {
		facts.CPUPercent = pct
	} else {
		g.log.Debug().Err(err).Msg("cpu percent unavailable")
	}

	if memInfo, err := proc.MemoryInfoWithContext(ctx); err == nil && memInfo != nil {
		facts.MemoryRSSMB = float64(memInfo.RSS) / (1024 * 1024)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		facts.SystemMemUsed = vm.UsedPercent
	}

	return facts
}

// CPUCount reports the number of logical CPUs available, or 1 when the count
// cannot be read.
func (g *ProcessGatherer) CPUCount(ctx context.Context) int {
	counts, err := cpu.CountsWithContext(ctx, true)
	if err != nil || counts == 0 {
		return 1
	}
	return counts
}
