package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchd.sh/internal/middleware"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
	assert.Equal(t, "/api/v1", cfg.Server.APIPrefix)
	assert.Equal(t, 2*time.Second, cfg.HealthCheckTimeout)
	assert.Equal(t, 2*time.Second, cfg.Stream.Interval)
	assert.Equal(t, 5*time.Second, cfg.Stream.WriteTimeout)
	assert.Equal(t, "/", cfg.Disk.Path)
	assert.Equal(t, 80.0, cfg.Health.TemperatureLimit)
	assert.Equal(t, 95.0, cfg.Health.CPULimit)
	assert.Equal(t, 95.0, cfg.Health.MemoryLimit)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.CORS.AllowCredentials)
	assert.Equal(t, "_benchd._tcp", cfg.Discovery.Service)
	assert.False(t, cfg.TLSServerConfig().Enabled())
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "grpc", cfg.Tracing.Protocol)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRate)

	rl, ok := cfg.RateLimiterConfig()
	assert.True(t, ok)
	assert.Equal(t, 10.0, rl.Rate)
	assert.Equal(t, 20, rl.Burst)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BENCHD_SERVER_PORT", "9100")
	t.Setenv("BENCHD_STREAM_INTERVAL", "500ms")
	t.Setenv("BENCHD_HEALTH_CHECK_TIMEOUT", "1s")
	t.Setenv("BENCHD_CORS_ALLOWED_ORIGINS", "https://dash.lab,https://ops.lab")
	t.Setenv("BENCHD_RATELIMIT_RPS", "0")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Stream.Interval)
	assert.Equal(t, time.Second, cfg.HealthCheckTimeout)
	assert.Equal(t, []string{"https://dash.lab", "https://ops.lab"}, cfg.CORS.AllowedOrigins)

	_, ok := cfg.RateLimiterConfig()
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8080
disk:
  path: /data
health:
  temperature_limit: 70
log:
  level: debug
`), 0o644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/data", cfg.Disk.Path)
	assert.Equal(t, 70.0, cfg.Health.TemperatureLimit)
	assert.Equal(t, 95.0, cfg.Health.CPULimit)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		t.Chdir(t.TempDir())
		cfg, err := Load(viper.New(), "")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errIs  error
	}{
		{name: "port out of range", mutate: func(c *Config) { c.Server.Port = 70000 }},
		{name: "relative prefix", mutate: func(c *Config) { c.Server.APIPrefix = "api" }},
		{name: "zero interval", mutate: func(c *Config) { c.Stream.Interval = 0 }},
		{name: "negative timeout", mutate: func(c *Config) { c.HealthCheckTimeout = -time.Second }},
		{name: "zero threshold", mutate: func(c *Config) { c.Health.CPULimit = 0 }},
		{name: "burst missing", mutate: func(c *Config) { c.RateLimit.Burst = 0 }},
		{name: "cert without key", mutate: func(c *Config) { c.TLS.CertFile = "/etc/benchd/bench.crt" }},
		{name: "tracing protocol", mutate: func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Protocol = "zipkin" }},
		{
			name:   "wildcard with credentials",
			mutate: func(c *Config) { c.CORS.AllowCredentials = true },
			errIs:  middleware.ErrInsecureCORS,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			if tt.errIs != nil {
				assert.ErrorIs(t, err, tt.errIs)
			}
		})
	}
}

func TestTLSAndTracingSections(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BENCHD_TLS_SELF_SIGNED", "true")
	t.Setenv("BENCHD_TLS_CACHE_DIR", "/var/lib/benchd/tls")
	t.Setenv("BENCHD_TRACING_ENABLED", "true")
	t.Setenv("BENCHD_TRACING_PROTOCOL", "http")
	t.Setenv("BENCHD_TRACING_ENDPOINT", "otel.lab:4318")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	tc := cfg.TLSServerConfig()
	assert.True(t, tc.Enabled())
	assert.True(t, tc.SelfSigned)
	assert.Equal(t, "/var/lib/benchd/tls", tc.CacheDir)

	tr := cfg.TracingConfig("1.2.3")
	assert.True(t, tr.Enabled)
	assert.Equal(t, "http", tr.Protocol)
	assert.Equal(t, "otel.lab:4318", tr.Endpoint)
	assert.Equal(t, "benchd", tr.ServiceName)
	assert.Equal(t, "1.2.3", tr.ServiceVersion)
}
