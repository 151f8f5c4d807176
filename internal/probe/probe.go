// Package probe reads individual metric domains from the OS and from
// Raspberry Pi vendor tools. Probes are independent: each bounds its own
// latency and reports failure as a Result instead of an error.
package probe

import (
	"context"
	"log/slog"
)

// LoadSampler supplies CPU utilisation without blocking the caller
type LoadSampler interface {
	Sample(ctx context.Context) (float64, error)
}

// Prober runs the source probes against a set of Sources
type Prober struct {
	src      Sources
	load     LoadSampler
	diskPath string
	logger   *slog.Logger
}

// Option configures a Prober
type Option func(*Prober)

// WithDiskPath sets the filesystem reported as the disk root
func WithDiskPath(path string) Option {
	return func(p *Prober) {
		if path != "" {
			p.diskPath = path
		}
	}
}

// WithLogger sets the logger used for fallback diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(p *Prober) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Prober
func New(src Sources, load LoadSampler, opts ...Option) *Prober {
	p := &Prober{
		src:      src,
		load:     load,
		diskPath: "/",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}
