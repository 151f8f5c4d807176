package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"benchd.sh/internal/ferrors"
	"benchd.sh/internal/models"
	"benchd.sh/internal/probe"
)

type stubRunner map[string]string

func (r stubRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	if len(args) > 0 {
		if out, ok := r[args[0]]; ok {
			return out, nil
		}
	}
	return "", ferrors.Wrap(ferrors.ErrToolMissing, name)
}

type stubSampler struct {
	warmups atomic.Int32
	usage   float64
}

func (s *stubSampler) EnsureInitialized(context.Context) error {
	s.warmups.Add(1)
	return nil
}

func (s *stubSampler) Sample(context.Context) (float64, error) {
	return s.usage, nil
}

func piSources() probe.Sources {
	return probe.Sources{
		Runner: stubRunner{
			"measure_temp":  "temp=48.3'C",
			"get_throttled": "throttled=0x50005",
		},
		Sensors: func(context.Context) ([]host.TemperatureStat, error) { return nil, nil },
		VirtualMemory: func(context.Context) (*mem.VirtualMemoryStat, error) {
			return &mem.VirtualMemoryStat{Total: 8 << 30, Available: 6 << 30, Used: 2 << 30, UsedPercent: 25}, nil
		},
		NetIO: func(context.Context) ([]net.IOCountersStat, error) {
			return []net.IOCountersStat{{Name: "all", BytesSent: 1 << 20, BytesRecv: 2 << 20}}, nil
		},
		DiskUsage: func(context.Context, string) (*disk.UsageStat, error) {
			return &disk.UsageStat{Total: 64 << 30, Used: 16 << 30, Free: 48 << 30, UsedPercent: 25}, nil
		},
		DiskIO: func(context.Context) (map[string]disk.IOCountersStat, error) { return nil, errors.New("not supported") },
		HostInfo: func(context.Context) (*host.InfoStat, error) {
			return &host.InfoStat{Hostname: "bench", OS: "linux", KernelVersion: "6.6.31", KernelArch: "aarch64"}, nil
		},
		Pids:     func(context.Context) ([]int32, error) { return make([]int32, 142), nil },
		CPUCount: func(context.Context) (int, error) { return 4, nil },
		CPUInfo:  func(context.Context) ([]cpu.InfoStat, error) { return nil, errors.New("no cpuinfo") },
	}
}

func newAssembler(src probe.Sources, s *stubSampler) *Assembler {
	a := NewAssembler(probe.New(src, s), s, nil)
	a.nowFunc = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return a
}

func TestAssemble(t *testing.T) {
	s := &stubSampler{usage: 23.4}
	snap := newAssembler(piSources(), s).Assemble(context.Background())

	assert.Equal(t, int32(1), s.warmups.Load())
	assert.Equal(t, "Linux", snap.System.Platform)
	assert.Equal(t, 23.4, snap.CPU.UsagePercent)
	assert.Equal(t, 4, snap.CPU.Count)
	assert.Equal(t, 8192.0, snap.Memory.TotalMB)
	assert.True(t, snap.Temperature.Available)
	assert.Equal(t, 48.3, *snap.Temperature.Celsius)
	assert.Equal(t, models.VoltageWarning, snap.Voltage.Status)
	assert.True(t, snap.Voltage.Flags.UnderVoltage)
	assert.Equal(t, 2.0, snap.Network.MbpsRecv)
	assert.Equal(t, 64.0, snap.Disk.Root.TotalGB)
	assert.Nil(t, snap.Disk.IO)
	assert.Equal(t, models.ProcessCount{Count: 142, Available: true}, snap.ProcessCount)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), snap.Timestamp)
}

func TestAssembleIsolatesFailingProbes(t *testing.T) {
	src := piSources()
	src.Runner = stubRunner{}
	src.VirtualMemory = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return nil, errors.New("open /proc/meminfo: permission denied")
	}
	src.Pids = func(context.Context) ([]int32, error) { return nil, errors.New("open /proc: permission denied") }

	snap := newAssembler(src, &stubSampler{usage: 5}).Assemble(context.Background())

	assert.Equal(t, models.TemperatureInfo{Raw: "N/A"}, snap.Temperature)
	assert.Equal(t, models.VoltageInfo{Raw: "N/A", Status: models.VoltageNA}, snap.Voltage)
	assert.Equal(t, "open /proc/meminfo: permission denied", snap.Memory.Error)
	assert.Equal(t, "open /proc: permission denied", snap.ProcessCount.Error)

	// unaffected sections still report
	assert.Equal(t, 5.0, snap.CPU.UsagePercent)
	assert.Empty(t, snap.Network.Error)
	assert.Empty(t, snap.Disk.Error)

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &body))
	assert.JSONEq(t, `{"error":"open /proc/meminfo: permission denied"}`, string(body["memory"]))
	assert.JSONEq(t, `{"error":"open /proc: permission denied","available":false}`, string(body["process_count"]))
	assert.JSONEq(t, `{"raw":"N/A","celsius":null,"available":false}`, string(body["temperature"]))
	assert.JSONEq(t, `{"raw":"N/A","status":"N/A","available":false}`, string(body["voltage"]))
}

func TestAssembleIsFresh(t *testing.T) {
	s := &stubSampler{usage: 1}
	a := NewAssembler(probe.New(piSources(), s), s, nil)

	first := a.Assemble(context.Background())
	s.usage = 2
	second := a.Assemble(context.Background())

	assert.Equal(t, 1.0, first.CPU.UsagePercent)
	assert.Equal(t, 2.0, second.CPU.UsagePercent)
	assert.False(t, second.Timestamp.Before(first.Timestamp))
}

func TestAssembleRecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	newAssembler(piSources(), &stubSampler{}).Assemble(context.Background())

	src := piSources()
	src.Runner = stubRunner{}
	src.VirtualMemory = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return nil, errors.New("open /proc/meminfo: permission denied")
	}
	newAssembler(src, &stubSampler{}).Assemble(context.Background())

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "snapshot.Assemble", ended[0].Name())
	assert.NotEqual(t, codes.Error, ended[0].Status().Code)

	// missing vcgencmd is routine, the memory failure is not
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Equal(t, "failed sections: memory", ended[1].Status().Description)
}
