package discovery

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const advertisePort = 5354

func TestParseEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry *mdns.ServiceEntry
		want  Bench
		ok    bool
	}{
		{
			name: "nil entry",
			ok:   false,
		},
		{
			name:  "missing name",
			entry: &mdns.ServiceEntry{Host: "bench-01.local."},
			ok:    false,
		},
		{
			name: "full entry",
			entry: &mdns.ServiceEntry{
				Name:       "bench-01._benchd._tcp.local.",
				Host:       "bench-01.local.",
				AddrV4:     net.ParseIP("192.168.1.40"),
				Port:       8000,
				InfoFields: []string{"api=/api/v1", "stream=/ws/system-stream", "version=1.0.0", "garbage"},
			},
			want: Bench{
				Instance:   "bench-01",
				Hostname:   "bench-01.local",
				Address:    "192.168.1.40",
				Port:       8000,
				Version:    "1.0.0",
				APIPrefix:  "/api/v1",
				Properties: map[string]string{"stream": "/ws/system-stream"},
			},
			ok: true,
		},
		{
			name: "ipv6 only",
			entry: &mdns.ServiceEntry{
				Name:   "bench-02._benchd._tcp.local.",
				Host:   "bench-02.local.",
				AddrV6: net.ParseIP("fe80::1"),
				Port:   8000,
			},
			want: Bench{
				Instance: "bench-02",
				Hostname: "bench-02.local",
				Address:  "fe80::1",
				Port:     8000,
			},
			ok: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseEntry(tt.entry)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestTXTRecordsSorted(t *testing.T) {
	records := txtRecords(map[string]string{"version": "1.0.0", "api": "/api/v1", "stream": "/ws/system-stream"})
	assert.Equal(t, []string{"api=/api/v1", "stream=/ws/system-stream", "version=1.0.0"}, records)
	assert.Empty(t, txtRecords(nil))
}

func TestAdvertiserStop(t *testing.T) {
	a := NewAdvertiser("", advertisePort, nil)
	assert.Equal(t, DefaultServiceName, a.serviceType)

	// Stopping before start is a no-op
	require.NoError(t, a.Stop())

	if err := a.Start(); err != nil {
		if isBindError(err) {
			t.Skip("Skipping test due to mDNS binding issues:", err)
		}
		t.Fatalf("Failed to start advertiser: %v", err)
	}
	assert.NotEmpty(t, a.Instance())

	require.NoError(t, a.Stop())
	assert.Nil(t, a.server)
}

func TestAdvertiseAndBrowse(t *testing.T) {
	service := "_benchd-test._tcp"
	a := NewAdvertiser(service, advertisePort, map[string]string{"version": "test"})
	if err := a.Start(); err != nil {
		if isBindError(err) {
			t.Skip("Skipping test due to mDNS binding issues:", err)
		}
		t.Fatalf("Failed to start advertiser: %v", err)
	}
	defer a.Stop()

	time.Sleep(500 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	benches, err := Browse(ctx, service, 2*time.Second)
	if err != nil {
		if isNetworkError(err) {
			t.Skip("Skipping test due to network issues:", err)
		}
		t.Fatalf("Failed to browse: %v", err)
	}
	if len(benches) == 0 {
		t.Skip("Multicast loopback unavailable in this environment")
	}

	var found bool
	for _, b := range benches {
		if b.Instance == a.Instance() {
			found = true
			assert.Equal(t, advertisePort, b.Port)
			assert.Equal(t, "test", b.Version)
		}
	}
	assert.True(t, found, "advertised bench not in %v", benches)
}

func TestBrowseCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Browse(ctx, "", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

// Helper functions to identify common errors that should cause test skips
func isBindError(err error) bool {
	return contains(err.Error(),
		"bind",
		"address already in use",
		"permission denied",
		"cannot assign requested address",
		"no such device",
	)
}

func isNetworkError(err error) bool {
	return contains(err.Error(),
		"no route to host",
		"network is unreachable",
		"connection refused",
		"failed to bind",
	)
}

// contains checks if str contains any of the given substrings
func contains(str string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(str, sub) {
			return true
		}
	}
	return false
}

func TestBenchURL(t *testing.T) {
	assert.Equal(t, "http://192.168.1.40:8000", Bench{Address: "192.168.1.40", Port: 8000}.URL())
	assert.Equal(t, "http://bench-02.local:8001", Bench{Hostname: "bench-02.local", Port: 8001}.URL())
	assert.Equal(t, "https://192.168.1.40:8443", Bench{
		Address:    "192.168.1.40",
		Hostname:   "bench-01.local",
		Port:       8443,
		Properties: map[string]string{"scheme": "https"},
	}.URL())
}
