package models

import "math"

const (
	bytesPerMB = 1024 * 1024
	bytesPerGB = 1024 * 1024 * 1024
)

// Round2 rounds to two decimal places
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// BytesToMB converts a byte count to mebibytes rounded to two decimals
func BytesToMB(b uint64) float64 {
	return Round2(float64(b) / bytesPerMB)
}

// BytesToGB converts a byte count to gibibytes rounded to two decimals
func BytesToGB(b uint64) float64 {
	return Round2(float64(b) / bytesPerGB)
}

// NewMemoryInfo builds a MemoryInfo with its derived fields filled in
func NewMemoryInfo(total, available, used uint64, percent float64) MemoryInfo {
	return MemoryInfo{
		TotalBytes:     total,
		AvailableBytes: available,
		UsedBytes:      used,
		Percent:        percent,
		TotalMB:        BytesToMB(total),
		AvailableMB:    BytesToMB(available),
		UsedMB:         BytesToMB(used),
	}
}

// NewDiskRootInfo builds a DiskRootInfo with its derived fields filled in
func NewDiskRootInfo(total, used, free uint64, percent float64) DiskRootInfo {
	return DiskRootInfo{
		TotalBytes: total,
		UsedBytes:  used,
		FreeBytes:  free,
		Percent:    percent,
		TotalGB:    BytesToGB(total),
		UsedGB:     BytesToGB(used),
		FreeGB:     BytesToGB(free),
	}
}

// WithDerived returns n with MbpsSent and MbpsRecv recomputed from the byte
// counters.
func (n NetworkInfo) WithDerived() NetworkInfo {
	n.MbpsSent = BytesToMB(n.BytesSent)
	n.MbpsRecv = BytesToMB(n.BytesRecv)
	return n
}
