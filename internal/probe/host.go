package probe

import (
	"context"
	"errors"
	"os"
	"runtime"
	"strings"

	"benchd.sh/internal/models"
)

// Memory reports virtual memory usage
func (p *Prober) Memory(ctx context.Context) Result[models.MemoryInfo] {
	vm, err := p.src.VirtualMemory(ctx)
	if err != nil {
		return Failed[models.MemoryInfo](err)
	}
	return OK(models.NewMemoryInfo(vm.Total, vm.Available, vm.Used, vm.UsedPercent))
}

// Network reports interface counters summed over all interfaces
func (p *Prober) Network(ctx context.Context) Result[models.NetworkInfo] {
	stats, err := p.src.NetIO(ctx)
	if err != nil {
		return Failed[models.NetworkInfo](err)
	}
	if len(stats) == 0 {
		return Failed[models.NetworkInfo](errors.New("no network counters reported"))
	}

	var info models.NetworkInfo
	for _, s := range stats {
		info.BytesSent += s.BytesSent
		info.BytesRecv += s.BytesRecv
		info.PacketsSent += s.PacketsSent
		info.PacketsRecv += s.PacketsRecv
		info.Errin += s.Errin
		info.Errout += s.Errout
		info.Dropin += s.Dropin
		info.Dropout += s.Dropout
	}
	return OK(info.WithDerived())
}

// Disk reports usage of the configured root filesystem. IO counters are
// attached only when the platform reports at least one device.
func (p *Prober) Disk(ctx context.Context) Result[models.DiskInfo] {
	usage, err := p.src.DiskUsage(ctx, p.diskPath)
	if err != nil {
		return Failed[models.DiskInfo](err)
	}

	info := models.DiskInfo{
		Root: models.NewDiskRootInfo(usage.Total, usage.Used, usage.Free, usage.UsedPercent),
	}

	if p.src.DiskIO == nil {
		return OK(info)
	}
	counters, err := p.src.DiskIO(ctx)
	if err != nil || len(counters) == 0 {
		p.logger.Debug("Disk IO counters unavailable", "error", err)
		return OK(info)
	}

	io := &models.DiskIOInfo{}
	for _, c := range counters {
		io.ReadBytes += c.ReadBytes
		io.WriteBytes += c.WriteBytes
		io.ReadCount += c.ReadCount
		io.WriteCount += c.WriteCount
	}
	info.IO = io
	return OK(info)
}

// System reports platform identity. It always succeeds, filling what the
// host query could not provide from the Go runtime.
func (p *Prober) System(ctx context.Context) Result[models.SystemInfo] {
	info := models.SystemInfo{
		Platform:     capitalize(runtime.GOOS),
		Architecture: runtime.GOARCH,
	}

	if hi, err := p.src.HostInfo(ctx); err == nil {
		if hi.OS != "" {
			info.Platform = capitalize(hi.OS)
		}
		info.PlatformRelease = hi.KernelVersion
		if hi.KernelArch != "" {
			info.Architecture = hi.KernelArch
		}
		info.Hostname = hi.Hostname
	} else {
		p.logger.Debug("Host info unavailable", "error", err)
	}

	if info.Hostname == "" {
		info.Hostname, _ = os.Hostname()
	}

	if p.src.KernelVersion != nil {
		if v, err := p.src.KernelVersion(); err == nil {
			info.PlatformVersion = v
		}
	}

	return OK(info)
}

// ProcessCount reports the number of live processes
func (p *Prober) ProcessCount(ctx context.Context) Result[models.ProcessCount] {
	pids, err := p.src.Pids(ctx)
	if err != nil {
		return Failed[models.ProcessCount](err)
	}
	return OK(models.ProcessCount{Count: len(pids), Available: true})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
