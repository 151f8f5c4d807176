package models

import (
	"encoding/json"
	"time"
)

// Snapshot is one complete set of readings produced by a single assembly.
// It is never mutated after assembly.
type Snapshot struct {
	System       SystemInfo      `json:"system"`
	CPU          CPUInfo         `json:"cpu"`
	Memory       MemoryInfo      `json:"memory"`
	Temperature  TemperatureInfo `json:"temperature"`
	Voltage      VoltageInfo     `json:"voltage"`
	Network      NetworkInfo     `json:"network"`
	Disk         DiskInfo        `json:"disk"`
	ProcessCount ProcessCount    `json:"process_count"`
	Timestamp    time.Time       `json:"timestamp"`
}

// SystemInfo describes the platform the service runs on
type SystemInfo struct {
	Platform        string `json:"platform"`
	PlatformRelease string `json:"platform_release"`
	PlatformVersion string `json:"platform_version"`
	Architecture    string `json:"architecture"`
	Hostname        string `json:"hostname"`
}

// CPUInfo holds CPU load and frequency. Frequencies are nil where the
// platform does not expose them.
type CPUInfo struct {
	UsagePercent    float64  `json:"usage_percent"`
	Count           int      `json:"count"`
	FrequencyMHz    *float64 `json:"frequency_mhz"`
	FrequencyMinMHz *float64 `json:"frequency_min_mhz"`
	FrequencyMaxMHz *float64 `json:"frequency_max_mhz"`
	Error           string   `json:"error,omitempty"`
}

// MemoryInfo holds RAM usage. The *_mb fields are derived from the byte
// counters, use NewMemoryInfo to build one.
type MemoryInfo struct {
	TotalBytes     uint64  `json:"total_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsedBytes      uint64  `json:"used_bytes"`
	Percent        float64 `json:"percent"`
	TotalMB        float64 `json:"total_mb"`
	AvailableMB    float64 `json:"available_mb"`
	UsedMB         float64 `json:"used_mb"`
	Error          string  `json:"error,omitempty"`
}

// TemperatureInfo holds the SoC temperature. Available is true exactly when
// Celsius is set.
type TemperatureInfo struct {
	Raw       string   `json:"raw"`
	Celsius   *float64 `json:"celsius"`
	Available bool     `json:"available"`
}

// VoltageStatus summarises the throttle bitmask
type VoltageStatus string

const (
	VoltageOK      VoltageStatus = "OK"
	VoltageWarning VoltageStatus = "WARNING"
	VoltageNA      VoltageStatus = "N/A"
)

// ThrottleFlags are the decoded bits of `vcgencmd get_throttled`
type ThrottleFlags struct {
	UnderVoltage            bool `json:"under_voltage"`
	FrequencyCapped         bool `json:"frequency_capped"`
	Throttled               bool `json:"throttled"`
	SoftTempLimit           bool `json:"soft_temp_limit"`
	UnderVoltageOccurred    bool `json:"under_voltage_occurred"`
	FrequencyCappedOccurred bool `json:"frequency_capped_occurred"`
	ThrottledOccurred       bool `json:"throttled_occurred"`
	SoftTempLimitOccurred   bool `json:"soft_temp_limit_occurred"`
}

// VoltageInfo holds the throttle state. HexValue and Flags are set together
// whenever the tool output carried a decodable value.
type VoltageInfo struct {
	Raw       string         `json:"raw"`
	HexValue  *string        `json:"hex_value,omitempty"`
	Flags     *ThrottleFlags `json:"flags,omitempty"`
	Status    VoltageStatus  `json:"status"`
	Available bool           `json:"available"`
}

// NetworkInfo holds aggregate interface counters since boot
type NetworkInfo struct {
	BytesSent   uint64  `json:"bytes_sent"`
	BytesRecv   uint64  `json:"bytes_recv"`
	PacketsSent uint64  `json:"packets_sent"`
	PacketsRecv uint64  `json:"packets_recv"`
	Errin       uint64  `json:"errin"`
	Errout      uint64  `json:"errout"`
	Dropin      uint64  `json:"dropin"`
	Dropout     uint64  `json:"dropout"`
	MbpsSent    float64 `json:"mbps_sent"`
	MbpsRecv    float64 `json:"mbps_recv"`
	Error       string  `json:"error,omitempty"`
}

// DiskInfo holds root filesystem usage and, where the platform exposes
// them, aggregate IO counters.
type DiskInfo struct {
	Root  DiskRootInfo `json:"root"`
	IO    *DiskIOInfo  `json:"io,omitempty"`
	Error string       `json:"error,omitempty"`
}

type DiskRootInfo struct {
	TotalBytes uint64  `json:"total_bytes"`
	UsedBytes  uint64  `json:"used_bytes"`
	FreeBytes  uint64  `json:"free_bytes"`
	Percent    float64 `json:"percent"`
	TotalGB    float64 `json:"total_gb"`
	UsedGB     float64 `json:"used_gb"`
	FreeGB     float64 `json:"free_gb"`
}

type DiskIOInfo struct {
	ReadBytes  uint64 `json:"read_bytes"`
	WriteBytes uint64 `json:"write_bytes"`
	ReadCount  uint64 `json:"read_count"`
	WriteCount uint64 `json:"write_count"`
}

// ProcessCount is the number of live processes
type ProcessCount struct {
	Count     int    `json:"count"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// errorRecord is the wire shape of a section whose probe failed
type errorRecord struct {
	Error string `json:"error"`
}

func (c CPUInfo) MarshalJSON() ([]byte, error) {
	if c.Error != "" {
		return json.Marshal(errorRecord{Error: c.Error})
	}
	type plain CPUInfo
	return json.Marshal(plain(c))
}

func (m MemoryInfo) MarshalJSON() ([]byte, error) {
	if m.Error != "" {
		return json.Marshal(errorRecord{Error: m.Error})
	}
	type plain MemoryInfo
	return json.Marshal(plain(m))
}

func (n NetworkInfo) MarshalJSON() ([]byte, error) {
	if n.Error != "" {
		return json.Marshal(errorRecord{Error: n.Error})
	}
	type plain NetworkInfo
	return json.Marshal(plain(n))
}

func (d DiskInfo) MarshalJSON() ([]byte, error) {
	if d.Error != "" {
		return json.Marshal(errorRecord{Error: d.Error})
	}
	type plain DiskInfo
	return json.Marshal(plain(d))
}

func (p ProcessCount) MarshalJSON() ([]byte, error) {
	if p.Error != "" {
		return json.Marshal(struct {
			Error     string `json:"error"`
			Available bool   `json:"available"`
		}{Error: p.Error})
	}
	type plain ProcessCount
	return json.Marshal(plain(p))
}
