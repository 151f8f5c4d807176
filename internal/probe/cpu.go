package probe

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"benchd.sh/internal/models"
)

const cpufreqDir = "devices/system/cpu/cpu0/cpufreq"

// CPU reports utilisation from the load sampler together with the logical
// core count and cpu0 frequency scaling limits.
func (p *Prober) CPU(ctx context.Context) Result[models.CPUInfo] {
	usage, err := p.load.Sample(ctx)
	if err != nil {
		return Failed[models.CPUInfo](err)
	}

	count, err := p.src.CPUCount(ctx)
	if err != nil {
		return Failed[models.CPUInfo](err)
	}

	info := models.CPUInfo{
		UsagePercent:    usage,
		Count:           count,
		FrequencyMHz:    p.cpufreq("scaling_cur_freq"),
		FrequencyMinMHz: p.cpufreq("cpuinfo_min_freq"),
		FrequencyMaxMHz: p.cpufreq("cpuinfo_max_freq"),
	}

	if info.FrequencyMHz == nil && p.src.CPUInfo != nil {
		if stats, err := p.src.CPUInfo(ctx); err == nil && len(stats) > 0 && stats[0].Mhz > 0 {
			mhz := stats[0].Mhz
			info.FrequencyMHz = &mhz
		}
	}

	return OK(info)
}

// cpufreq reads a kHz value from sysfs and returns it in MHz
func (p *Prober) cpufreq(name string) *float64 {
	if p.src.ReadFile == nil || p.src.SysfsRoot == "" {
		return nil
	}

	data, err := p.src.ReadFile(filepath.Join(p.src.SysfsRoot, cpufreqDir, name))
	if err != nil {
		return nil
	}

	khz, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		p.logger.Debug("Unparsable cpufreq value", "file", name, "error", err)
		return nil
	}

	mhz := khz / 1000
	return &mhz
}
