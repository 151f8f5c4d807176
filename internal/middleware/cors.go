package middleware

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/cors"
)

// CORSConfig defines CORS configuration
type CORSConfig struct {
	// AllowedOrigins is a list of origins that are allowed. ["*"] allows any
	// origin; entries containing * elsewhere are matched as substrings.
	AllowedOrigins []string

	// AllowedMethods is a list of methods the client is allowed to use
	AllowedMethods []string

	// AllowedHeaders is a list of headers the client is allowed to use
	AllowedHeaders []string

	// ExposedHeaders indicates which headers are safe to expose to the API
	ExposedHeaders []string

	// AllowCredentials indicates whether the request can include user credentials
	AllowCredentials bool

	// MaxAge indicates how long the results of a preflight request can be cached (in seconds)
	MaxAge int

	// AllowPrivateNetwork allows origins on loopback and RFC 1918 addresses
	AllowPrivateNetwork bool

	// Debug enables debug logging
	Debug bool
}

// DefaultCORSConfig returns the configuration used by the bench API, which
// is read-only and served to dashboards on the lab network.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{
			RequestIDHeader,
			"X-RateLimit-Limit",
		},
		MaxAge: 600,
	}
}

// ErrInsecureCORS is returned when CORS configuration is insecure
var ErrInsecureCORS = errors.New("insecure CORS configuration: cannot use wildcard origin with credentials")

// ValidateCORSConfig validates CORS configuration
func ValidateCORSConfig(config *CORSConfig) error {
	if config == nil {
		return nil
	}

	for _, origin := range config.AllowedOrigins {
		if origin == "*" && config.AllowCredentials {
			return ErrInsecureCORS
		}
	}

	for _, method := range config.AllowedMethods {
		switch method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			slog.Warn("CORS method not served by the bench API", "method", method)
		}
	}

	return nil
}

// NewCORS creates a new CORS handler
func NewCORS(config *CORSConfig) *cors.Cors {
	if config == nil {
		config = DefaultCORSConfig()
	}

	origins := sanitizeOrigins(config.AllowedOrigins)

	options := cors.Options{
		AllowedMethods:   config.AllowedMethods,
		AllowedHeaders:   config.AllowedHeaders,
		ExposedHeaders:   config.ExposedHeaders,
		AllowCredentials: config.AllowCredentials,
		MaxAge:           config.MaxAge,
		Debug:            config.Debug,
	}

	// rs/cors handles exact origins and one wildcard per origin itself
	if config.AllowPrivateNetwork {
		options.AllowOriginFunc = originValidator(origins, true)
	} else {
		options.AllowedOrigins = origins
	}

	if config.Debug {
		options.Logger = &corsLogger{}
	}

	return cors.New(options)
}

// CORSMiddleware creates an HTTP middleware for CORS
func CORSMiddleware(config *CORSConfig) func(http.Handler) http.Handler {
	c := NewCORS(config)
	return func(next http.Handler) http.Handler {
		return c.Handler(next)
	}
}

type originPattern struct {
	prefix string
	suffix string
}

func (p originPattern) match(origin string) bool {
	return len(origin) >= len(p.prefix)+len(p.suffix) &&
		strings.HasPrefix(origin, p.prefix) &&
		strings.HasSuffix(origin, p.suffix)
}

// originValidator matches exact origins, wildcard patterns and, when
// enabled, private network hosts.
func originValidator(origins []string, allowPrivate bool) func(origin string) bool {
	exact := make(map[string]bool)
	var patterns []originPattern
	anyOrigin := false

	for _, origin := range origins {
		switch {
		case origin == "*":
			anyOrigin = true
		case strings.Contains(origin, "*"):
			prefix, suffix, _ := strings.Cut(origin, "*")
			patterns = append(patterns, originPattern{prefix: prefix, suffix: suffix})
		default:
			exact[origin] = true
		}
	}

	return func(origin string) bool {
		if anyOrigin || exact[origin] {
			return true
		}
		for _, pattern := range patterns {
			if pattern.match(origin) {
				return true
			}
		}
		return allowPrivate && isPrivateNetwork(origin)
	}
}

// sanitizeOrigins drops malformed origins and strips paths
func sanitizeOrigins(origins []string) []string {
	sanitized := []string{}

	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}

		if origin == "*" {
			return []string{"*"}
		}

		if strings.Contains(origin, "*") {
			sanitized = append(sanitized, origin)
			continue
		}

		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			slog.Warn("Invalid CORS origin format, skipping", "origin", origin)
			continue
		}

		u, err := url.Parse(origin)
		if err != nil {
			slog.Warn("Invalid CORS origin URL, skipping", "origin", origin, "error", err)
			continue
		}

		sanitized = append(sanitized, u.Scheme+"://"+u.Host)
	}

	return sanitized
}

// isPrivateNetwork checks if the origin is on loopback or a private range
func isPrivateNetwork(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := u.Hostname()
	if host == "localhost" {
		return true
	}

	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}

// corsLogger implements the cors.Logger interface
type corsLogger struct{}

func (l *corsLogger) Printf(format string, v ...interface{}) {
	slog.Debug("CORS", "message", strings.TrimSpace(strings.TrimSuffix(format, "\n")), "args", v)
}
