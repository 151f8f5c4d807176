// Package health derives a coarse status from a snapshot
package health

import (
	"fmt"

	"benchd.sh/internal/models"
)

// Status represents health check status
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	// StatusUnhealthy is part of the status vocabulary but no rule produces
	// it yet.
	StatusUnhealthy Status = "unhealthy"
)

// HealthStatus is a derived assessment, never stored
type HealthStatus struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// HealthThresholds defines the limits above which the bench is degraded
type HealthThresholds struct {
	TemperatureLimit float64 `json:"temperature_limit" mapstructure:"temperature_limit"`
	CPULimit         float64 `json:"cpu_limit" mapstructure:"cpu_limit"`
	MemoryLimit      float64 `json:"memory_limit" mapstructure:"memory_limit"`
}

// DefaultThresholds returns default health thresholds
func DefaultThresholds() HealthThresholds {
	return HealthThresholds{
		TemperatureLimit: 80,
		CPULimit:         95,
		MemoryLimit:      95,
	}
}

// Assessor applies thresholds to snapshots
type Assessor struct {
	thresholds HealthThresholds
}

// NewAssessor creates an Assessor
func NewAssessor(thresholds HealthThresholds) *Assessor {
	return &Assessor{thresholds: thresholds}
}

// HealthyMessage accompanies every healthy verdict
const HealthyMessage = "all readings within thresholds"

// Assess evaluates the rules in order and returns the first match.
// Sections that carry an error are treated as zero readings.
func (a *Assessor) Assess(s models.Snapshot) HealthStatus {
	t := a.thresholds

	if s.Voltage.Status == models.VoltageWarning {
		return HealthStatus{Status: StatusDegraded, Message: "throttling or under-voltage reported"}
	}

	if s.Temperature.Available && s.Temperature.Celsius != nil && *s.Temperature.Celsius > t.TemperatureLimit {
		return HealthStatus{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("temperature %.1f°C above %.0f°C", *s.Temperature.Celsius, t.TemperatureLimit),
		}
	}

	if s.CPU.UsagePercent > t.CPULimit {
		return HealthStatus{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("cpu usage %.1f%% above %.0f%%", s.CPU.UsagePercent, t.CPULimit),
		}
	}
	if s.Memory.Percent > t.MemoryLimit {
		return HealthStatus{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("memory usage %.1f%% above %.0f%%", s.Memory.Percent, t.MemoryLimit),
		}
	}

	return HealthStatus{Status: StatusHealthy, Message: HealthyMessage}
}

// Report is a snapshot annotated with its assessment
type Report struct {
	models.Snapshot
	HealthStatus  Status `json:"health_status"`
	HealthMessage string `json:"health_message,omitempty"`
}

// NewReport assesses s and wraps it in a Report
func (a *Assessor) NewReport(s models.Snapshot) Report {
	hs := a.Assess(s)
	return Report{Snapshot: s, HealthStatus: hs.Status, HealthMessage: hs.Message}
}
