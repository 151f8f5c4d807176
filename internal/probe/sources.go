package probe

import (
	"context"
	"os"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// Sources holds every OS facility the probes read. DefaultSources binds
// them to gopsutil; tests replace individual fields.
type Sources struct {
	Runner        Runner
	SysfsRoot     string
	ReadFile      func(name string) ([]byte, error)
	Sensors       func(ctx context.Context) ([]host.TemperatureStat, error)
	VirtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	NetIO         func(ctx context.Context) ([]net.IOCountersStat, error)
	DiskUsage     func(ctx context.Context, path string) (*disk.UsageStat, error)
	DiskIO        func(ctx context.Context) (map[string]disk.IOCountersStat, error)
	HostInfo      func(ctx context.Context) (*host.InfoStat, error)
	Pids          func(ctx context.Context) ([]int32, error)
	CPUCount      func(ctx context.Context) (int, error)
	CPUInfo       func(ctx context.Context) ([]cpu.InfoStat, error)
	KernelVersion func() (string, error)
}

// DefaultSources returns Sources reading the local machine
func DefaultSources(runner Runner) Sources {
	return Sources{
		Runner:        runner,
		SysfsRoot:     "/sys",
		ReadFile:      os.ReadFile,
		Sensors:       host.SensorsTemperaturesWithContext,
		VirtualMemory: mem.VirtualMemoryWithContext,
		NetIO: func(ctx context.Context) ([]net.IOCountersStat, error) {
			return net.IOCountersWithContext(ctx, false)
		},
		DiskUsage: disk.UsageWithContext,
		DiskIO: func(ctx context.Context) (map[string]disk.IOCountersStat, error) {
			return disk.IOCountersWithContext(ctx)
		},
		HostInfo: host.InfoWithContext,
		Pids:     process.PidsWithContext,
		CPUCount: func(ctx context.Context) (int, error) {
			return cpu.CountsWithContext(ctx, true)
		},
		CPUInfo:       cpu.InfoWithContext,
		KernelVersion: kernelVersion,
	}
}
