package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"benchd.sh/internal/config"
	"benchd.sh/internal/discovery"
	"benchd.sh/internal/health"
	"benchd.sh/internal/models"
	"benchd.sh/internal/tui"
	"benchd.sh/internal/version"
	"benchd.sh/pkg/benchclient"
)

func init() {
	color.NoColor = true
}

func TestJSONToYAMLKeepsOrder(t *testing.T) {
	in := []byte(`{"system":{"platform":"Linux","hostname":"bench-01"},"cpu":{"usage_percent":12.5,"frequency_mhz":null},"voltage":{"raw":"N/A","status":"N/A","version":"1.0"}}`)

	out, err := jsonToYAML(in)
	require.NoError(t, err)

	text := string(out)
	assert.Less(t, strings.Index(text, "system:"), strings.Index(text, "cpu:"))
	assert.Less(t, strings.Index(text, "cpu:"), strings.Index(text, "voltage:"))
	assert.NotContains(t, text, "{")

	// Strings that look like other types survive the round trip
	var decoded map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, "1.0", decoded["voltage"]["version"])
	assert.Equal(t, "N/A", decoded["voltage"]["status"])
	assert.Nil(t, decoded["cpu"]["frequency_mhz"])
	assert.Equal(t, 12.5, decoded["cpu"]["usage_percent"])
}

func TestRunSnapshotFormats(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load(viper.New(), "")
	require.NoError(t, err)
	cfg.HealthCheckTimeout = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, runSnapshot(ctx, cfg, &buf, "json", false))

		var doc map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
		for _, key := range []string{"system", "cpu", "memory", "temperature", "voltage", "network", "disk", "process_count", "timestamp"} {
			assert.Contains(t, doc, key)
		}
		assert.NotContains(t, doc, "health_status")
	})

	t.Run("yaml with assessment", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, runSnapshot(ctx, cfg, &buf, "yaml", true))

		var doc map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
		assert.Contains(t, doc, "health_status")
		assert.Contains(t, doc, "process_count")
	})

	t.Run("unknown format", func(t *testing.T) {
		err := runSnapshot(ctx, cfg, &bytes.Buffer{}, "xml", false)
		assert.ErrorContains(t, err, "unsupported output format")
	})
}

func TestSummaryLine(t *testing.T) {
	celsius := 48.3
	snap := models.Snapshot{
		CPU:          models.CPUInfo{UsagePercent: 12.5},
		Memory:       models.MemoryInfo{Percent: 40.25},
		Temperature:  models.TemperatureInfo{Raw: "temp=48.3'C", Celsius: &celsius, Available: true},
		Voltage:      models.VoltageInfo{Status: models.VoltageWarning},
		ProcessCount: models.ProcessCount{Count: 212, Available: true},
		Timestamp:    time.Now(),
	}

	line := summaryLine(snap, health.HealthStatus{Status: health.StatusDegraded, Message: "throttling or under-voltage reported"})
	assert.Contains(t, line, "cpu  12.5%")
	assert.Contains(t, line, "temp 48.3°C")
	assert.Contains(t, line, "volt WARNING")
	assert.Contains(t, line, "procs 212")
	assert.True(t, strings.HasSuffix(line, "degraded throttling or under-voltage reported"))

	degraded := models.Snapshot{
		CPU:          models.CPUInfo{Error: "boom"},
		Memory:       models.MemoryInfo{Error: "boom"},
		Temperature:  models.TemperatureInfo{Raw: "N/A"},
		Voltage:      models.VoltageInfo{Status: models.VoltageNA},
		ProcessCount: models.ProcessCount{Error: "boom"},
	}
	line = summaryLine(degraded, health.HealthStatus{Status: health.StatusHealthy})
	assert.Contains(t, line, "cpu err")
	assert.Contains(t, line, "temp N/A")
	assert.Contains(t, line, "volt N/A")
	assert.Contains(t, line, "procs N/A")
}

func TestPrintVersion(t *testing.T) {
	info := version.Info{Version: "1.2.3", CommitSHA: "abc123", BuildTime: "now", GoVersion: "go1.24", Platform: "linux/arm64"}

	var buf bytes.Buffer
	require.NoError(t, printVersion(&buf, info, true, false))
	assert.Equal(t, "1.2.3\n", buf.String())

	buf.Reset()
	require.NoError(t, printVersion(&buf, info, false, true))
	var decoded version.Info
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, info, decoded)

	buf.Reset()
	require.NoError(t, printVersion(&buf, info, false, false))
	assert.Contains(t, buf.String(), "OS/Arch:    linux/arm64")
}

func TestWriteBenchTable(t *testing.T) {
	var buf bytes.Buffer
	writeBenchTable(&buf, []discovery.Bench{
		{Instance: "bench-01", Address: "192.168.1.40", Port: 8000, Version: "1.0.0"},
		{Instance: "bench-02", Hostname: "bench-02.local", Port: 8001},
		{Instance: "bench-03", Address: "192.168.1.43", Port: 8443, Properties: map[string]string{"scheme": "https"}},
	})

	out := buf.String()
	assert.Contains(t, out, "http://192.168.1.40:8000")
	assert.Contains(t, out, "http://bench-02.local:8001")
	assert.Contains(t, out, "bench-02")
	assert.Contains(t, out, "https://192.168.1.43:8443")
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "snapshot", "watch", "top", "discover", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestFollowIntoQuitsOnRejectedStream(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	client, err := benchclient.NewClient(ts.URL)
	require.NoError(t, err)

	var msgs []tea.Msg
	err = followInto(context.Background(), client, health.NewAssessor(health.DefaultThresholds()), func(m tea.Msg) {
		msgs = append(msgs, m)
	})

	assert.True(t, benchclient.IsStatus(err, http.StatusNotFound))
	require.Len(t, msgs, 2)
	conn, ok := msgs[0].(tui.ConnectionMsg)
	require.True(t, ok)
	assert.Error(t, conn.Err)
	assert.IsType(t, tea.QuitMsg{}, msgs[1])
}

func TestDisconnectReason(t *testing.T) {
	assert.Equal(t, "closed by server", disconnectReason(nil))
	assert.Equal(t, "boom", disconnectReason(errors.New("boom")))
}

func TestNewBenchClientInsecure(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"system":{"hostname":"bench-tls"}}`))
	}))
	defer ts.Close()

	strict, err := newBenchClient(ts.URL, false)
	require.NoError(t, err)
	_, err = strict.Health(context.Background())
	assert.Error(t, err)

	insecure, err := newBenchClient(ts.URL, true)
	require.NoError(t, err)
	snap, err := insecure.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bench-tls", snap.System.Hostname)
}
