// Package config loads benchd settings from defaults, an optional config
// file and BENCHD_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"benchd.sh/internal/health"
	"benchd.sh/internal/middleware"
	"benchd.sh/internal/observability"
	benchtls "benchd.sh/internal/tls"
	"benchd.sh/internal/tracing"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "BENCHD"

type Config struct {
	Server             ServerConfig            `mapstructure:"server"`
	HealthCheckTimeout time.Duration           `mapstructure:"health_check_timeout"`
	Stream             StreamConfig            `mapstructure:"stream"`
	Disk               DiskConfig              `mapstructure:"disk"`
	Health             health.HealthThresholds `mapstructure:"health"`
	CORS               CORSConfig              `mapstructure:"cors"`
	RateLimit          RateLimitConfig         `mapstructure:"ratelimit"`
	Log                LogConfig               `mapstructure:"log"`
	Discovery          DiscoveryConfig         `mapstructure:"discovery"`
	TLS                TLSConfig               `mapstructure:"tls"`
	Tracing            TracingConfig           `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	APIPrefix       string        `mapstructure:"api_prefix"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StreamConfig struct {
	// Interval between two snapshots on one connection. Read once at startup.
	Interval     time.Duration `mapstructure:"interval"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DiskConfig struct {
	Path string `mapstructure:"path"`
}

type CORSConfig struct {
	AllowedOrigins      []string `mapstructure:"allowed_origins"`
	AllowCredentials    bool     `mapstructure:"allow_credentials"`
	AllowPrivateNetwork bool     `mapstructure:"allow_private_network"`
}

// RateLimitConfig applies per client address. A zero RPS disables limiting.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type DiscoveryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Service string `mapstructure:"service"`
}

// TLSConfig enables HTTPS when a cert/key pair is given or self_signed is
// set. A generated pair is kept in cache_dir when one is configured.
type TLSConfig struct {
	CertFile   string   `mapstructure:"cert_file"`
	KeyFile    string   `mapstructure:"key_file"`
	SelfSigned bool     `mapstructure:"self_signed"`
	CacheDir   string   `mapstructure:"cache_dir"`
	Hosts      []string `mapstructure:"hosts"`
}

type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Endpoint   string  `mapstructure:"endpoint"`
	Protocol   string  `mapstructure:"protocol"`
	Headers    string  `mapstructure:"headers"`
	Insecure   bool    `mapstructure:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

// SetDefaults registers every key with its default value
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.api_prefix", "/api/v1")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("health_check_timeout", 2*time.Second)

	v.SetDefault("stream.interval", 2*time.Second)
	v.SetDefault("stream.write_timeout", 5*time.Second)

	v.SetDefault("disk.path", "/")

	thresholds := health.DefaultThresholds()
	v.SetDefault("health.temperature_limit", thresholds.TemperatureLimit)
	v.SetDefault("health.cpu_limit", thresholds.CPULimit)
	v.SetDefault("health.memory_limit", thresholds.MemoryLimit)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.allow_private_network", false)

	v.SetDefault("ratelimit.rps", 10.0)
	v.SetDefault("ratelimit.burst", 20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("discovery.enabled", false)
	v.SetDefault("discovery.service", "_benchd._tcp")

	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")
	v.SetDefault("tls.self_signed", false)
	v.SetDefault("tls.cache_dir", "")
	v.SetDefault("tls.hosts", []string{})

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.protocol", "grpc")
	v.SetDefault("tracing.headers", "")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("tracing.sample_rate", 1.0)
}

// Load reads configuration into a validated Config. configFile may be
// empty, in which case ./benchd.* and /etc/benchd/benchd.* are tried.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("benchd")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/benchd")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and combinations that cannot work at runtime
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.APIPrefix, "/") {
		return fmt.Errorf("invalid server.api_prefix %q: must start with /", c.Server.APIPrefix)
	}

	durations := map[string]time.Duration{
		"health_check_timeout":    c.HealthCheckTimeout,
		"stream.interval":         c.Stream.Interval,
		"stream.write_timeout":    c.Stream.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("invalid %s %s: must be positive", key, d)
		}
	}

	if c.Health.TemperatureLimit <= 0 || c.Health.CPULimit <= 0 || c.Health.MemoryLimit <= 0 {
		return errors.New("invalid health limits: must be positive")
	}

	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return errors.New("invalid ratelimit: rps and burst must not be negative")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst == 0 {
		return errors.New("invalid ratelimit: burst must be positive when rps is set")
	}

	if err := middleware.ValidateCORSConfig(c.CORSMiddlewareConfig()); err != nil {
		return fmt.Errorf("invalid cors: %w", err)
	}

	if err := c.TLSServerConfig().Validate(); err != nil {
		return fmt.Errorf("invalid tls: %w", err)
	}

	if err := c.TracingConfig("").Validate(); err != nil {
		return fmt.Errorf("invalid tracing: %w", err)
	}

	return nil
}

// Addr is the listen address of the HTTP server
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// CORSMiddlewareConfig converts the CORS section for the middleware
func (c *Config) CORSMiddlewareConfig() *middleware.CORSConfig {
	mc := middleware.DefaultCORSConfig()
	mc.AllowedOrigins = c.CORS.AllowedOrigins
	mc.AllowCredentials = c.CORS.AllowCredentials
	mc.AllowPrivateNetwork = c.CORS.AllowPrivateNetwork
	return mc
}

// RateLimiterConfig converts the rate limit section for the middleware.
// ok is false when limiting is disabled.
func (c *Config) RateLimiterConfig() (cfg middleware.RateLimiterConfig, ok bool) {
	if c.RateLimit.RPS <= 0 {
		return middleware.RateLimiterConfig{}, false
	}
	return middleware.RateLimiterConfig{
		Rate:       c.RateLimit.RPS,
		Burst:      c.RateLimit.Burst,
		Expiration: 10 * time.Minute,
	}, true
}

// LoggerConfig converts the log section for the observability package
func (c *Config) LoggerConfig(version string) observability.LogConfig {
	return observability.LogConfig{
		Level:       c.Log.Level,
		Format:      c.Log.Format,
		OutputPath:  c.Log.Output,
		ServiceName: "benchd",
		Version:     version,
	}
}

// TLSServerConfig converts the TLS section for the tls package
func (c *Config) TLSServerConfig() *benchtls.Config {
	return &benchtls.Config{
		CertFile:   c.TLS.CertFile,
		KeyFile:    c.TLS.KeyFile,
		SelfSigned: c.TLS.SelfSigned,
		CacheDir:   c.TLS.CacheDir,
		Hosts:      c.TLS.Hosts,
	}
}

// TracingConfig converts the tracing section for the tracing package
func (c *Config) TracingConfig(version string) tracing.Config {
	return tracing.Config{
		Enabled:        c.Tracing.Enabled,
		ServiceName:    "benchd",
		ServiceVersion: version,
		Endpoint:       c.Tracing.Endpoint,
		Protocol:       c.Tracing.Protocol,
		Headers:        c.Tracing.Headers,
		Insecure:       c.Tracing.Insecure,
		SampleRate:     c.Tracing.SampleRate,
	}
}
