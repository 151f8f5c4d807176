package cmd

import (
	"fmt"
	"strings"
	"time"

	"benchd.sh/internal/health"
	"benchd.sh/internal/models"
)

// summaryLine renders one snapshot as a single watch line
func summaryLine(s models.Snapshot, verdict health.HealthStatus) string {
	parts := []string{
		s.Timestamp.Local().Format(time.TimeOnly),
		fmt.Sprintf("cpu %s", cpuField(s.CPU)),
		fmt.Sprintf("mem %s", memoryField(s.Memory)),
		fmt.Sprintf("temp %s", temperatureField(s.Temperature)),
		fmt.Sprintf("volt %s", voltageField(s.Voltage)),
		fmt.Sprintf("procs %s", processField(s.ProcessCount)),
		statusField(verdict),
	}
	return strings.Join(parts, "  ")
}

func cpuField(c models.CPUInfo) string {
	if c.Error != "" {
		return red("err")
	}
	return fmt.Sprintf("%5.1f%%", c.UsagePercent)
}

func memoryField(m models.MemoryInfo) string {
	if m.Error != "" {
		return red("err")
	}
	return fmt.Sprintf("%5.1f%%", m.Percent)
}

func temperatureField(t models.TemperatureInfo) string {
	if !t.Available || t.Celsius == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f°C", *t.Celsius)
}

func voltageField(v models.VoltageInfo) string {
	switch v.Status {
	case models.VoltageOK:
		return green(string(v.Status))
	case models.VoltageWarning:
		return yellow(string(v.Status))
	default:
		return string(v.Status)
	}
}

func processField(p models.ProcessCount) string {
	if !p.Available {
		return "N/A"
	}
	return fmt.Sprintf("%d", p.Count)
}

func statusField(h health.HealthStatus) string {
	switch h.Status {
	case health.StatusHealthy:
		return green(string(h.Status))
	case health.StatusDegraded:
		return yellow(string(h.Status)) + " " + h.Message
	default:
		return red(string(h.Status)) + " " + h.Message
	}
}
