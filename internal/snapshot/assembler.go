// Package snapshot composes the output of every source probe into one
// models.Snapshot.
package snapshot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"benchd.sh/internal/metrics"
	"benchd.sh/internal/models"
	"benchd.sh/internal/probe"
	"benchd.sh/internal/tracing"
)

// Warmer prepares the CPU sampler before the first non-blocking read
type Warmer interface {
	EnsureInitialized(ctx context.Context) error
}

// Assembler calls each probe once per assembly, in a fixed order, and never
// retries.
type Assembler struct {
	prober  *probe.Prober
	warmer  Warmer
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewAssembler creates an Assembler
func NewAssembler(prober *probe.Prober, warmer Warmer, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		prober:  prober,
		warmer:  warmer,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Assemble produces a fresh snapshot. A failing probe degrades only its own
// section.
func (a *Assembler) Assemble(ctx context.Context) models.Snapshot {
	start := time.Now()
	defer func() {
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	}()

	ctx, span := tracing.StartSpan(ctx, "snapshot.Assemble")
	defer span.End()

	if err := a.warmer.EnsureInitialized(ctx); err != nil {
		a.logger.Warn("CPU sampler warm-up failed", "error", err)
	}

	var failed []string
	snap := models.Snapshot{
		System: section(&failed, "system", a.prober.System(ctx), func(string) models.SystemInfo {
			return models.SystemInfo{}
		}),
		CPU: section(&failed, "cpu", a.prober.CPU(ctx), func(reason string) models.CPUInfo {
			return models.CPUInfo{Error: reason}
		}),
		Memory: section(&failed, "memory", a.prober.Memory(ctx), func(reason string) models.MemoryInfo {
			return models.MemoryInfo{Error: reason}
		}),
		Temperature: section(&failed, "temperature", a.prober.Temperature(ctx), func(string) models.TemperatureInfo {
			return models.TemperatureInfo{Raw: "N/A"}
		}),
		Voltage: section(&failed, "voltage", a.prober.Voltage(ctx), func(string) models.VoltageInfo {
			return models.VoltageInfo{Raw: "N/A", Status: models.VoltageNA}
		}),
		Network: section(&failed, "network", a.prober.Network(ctx), func(reason string) models.NetworkInfo {
			return models.NetworkInfo{Error: reason}
		}),
		Disk: section(&failed, "disk", a.prober.Disk(ctx), func(reason string) models.DiskInfo {
			return models.DiskInfo{Error: reason}
		}),
		ProcessCount: section(&failed, "process_count", a.prober.ProcessCount(ctx), func(reason string) models.ProcessCount {
			return models.ProcessCount{Error: reason}
		}),
		Timestamp: a.nowFunc().UTC(),
	}

	span.SetAttributes(attribute.Int("snapshot.failed_sections", len(failed)))
	if len(failed) > 0 {
		tracing.SetStatusError(span, "failed sections: "+strings.Join(failed, ","))
	}

	observe(snap)
	return snap
}

// section unwraps a probe result, substituting the degraded record on
// failure. Only errors are added to failed; a missing source is routine.
func section[T any](failed *[]string, name string, r probe.Result[T], degraded func(reason string) T) T {
	metrics.RecordProbe(name, r.Outcome().String())
	if v, ok := r.Value(); ok {
		return v
	}
	if r.Outcome() == probe.OutcomeError {
		*failed = append(*failed, name)
	}
	return degraded(r.Reason())
}

// observe exports the latest readings as gauges
func observe(s models.Snapshot) {
	if s.CPU.Error == "" {
		metrics.CPUUsagePercent.Set(s.CPU.UsagePercent)
	}
	if s.Memory.Error == "" {
		metrics.MemoryUsagePercent.Set(s.Memory.Percent)
	}
	if s.Temperature.Available && s.Temperature.Celsius != nil {
		metrics.TemperatureCelsius.Set(*s.Temperature.Celsius)
	}
	if s.Voltage.HexValue != nil {
		if v, err := probe.ThrottledValue(*s.Voltage.HexValue); err == nil {
			metrics.ThrottledBits.Set(float64(v))
		}
	}
	if s.ProcessCount.Available {
		metrics.ProcessCount.Set(float64(s.ProcessCount.Count))
	}
}
