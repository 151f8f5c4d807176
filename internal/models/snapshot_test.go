package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSectionErrorShape(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"cpu", CPUInfo{Error: "boom"}, `{"error":"boom"}`},
		{"memory", MemoryInfo{Error: "boom"}, `{"error":"boom"}`},
		{"network", NetworkInfo{Error: "boom"}, `{"error":"boom"}`},
		{"disk", DiskInfo{Error: "boom"}, `{"error":"boom"}`},
		{"process count", ProcessCount{Error: "boom"}, `{"error":"boom","available":false}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.value)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestSnapshotFieldNames(t *testing.T) {
	data, err := json.Marshal(Snapshot{})
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))

	for _, key := range []string{"system", "cpu", "memory", "temperature", "voltage", "network", "disk", "process_count", "timestamp"} {
		assert.Contains(t, decoded, key)
	}
}

func TestDiskIOOmittedWhenUnavailable(t *testing.T) {
	data, err := json.Marshal(DiskInfo{Root: NewDiskRootInfo(10, 5, 5, 50)})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"io"`)
}

func TestUnavailableTemperatureEncodesNullCelsius(t *testing.T) {
	data, err := json.Marshal(TemperatureInfo{Raw: "N/A"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"raw":"N/A","celsius":null,"available":false}`, string(data))
}

func TestDerivedUnits(t *testing.T) {
	m := NewMemoryInfo(4124667904, 3018788864, 905744384, 26.8)
	assert.Equal(t, 3933.59, m.TotalMB)
	assert.Equal(t, 2878.94, m.AvailableMB)
	assert.Equal(t, 863.79, m.UsedMB)

	d := NewDiskRootInfo(31268536320, 9663676416, 20314152960, 32.2)
	assert.Equal(t, 29.12, d.TotalGB)
	assert.Equal(t, 9.0, d.UsedGB)
	assert.Equal(t, 18.92, d.FreeGB)

	n := NetworkInfo{BytesSent: 5 * 1024 * 1024, BytesRecv: 1536 * 1024}.WithDerived()
	assert.Equal(t, 5.0, n.MbpsSent)
	assert.Equal(t, 1.5, n.MbpsRecv)
}

func TestErrorSectionRoundTrip(t *testing.T) {
	var cpu CPUInfo
	require.NoError(t, json.Unmarshal([]byte(`{"error":"permission denied"}`), &cpu))
	assert.Equal(t, "permission denied", cpu.Error)
}
