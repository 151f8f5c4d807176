package probe

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"benchd.sh/internal/ferrors"
	"benchd.sh/internal/metrics"
)

// DefaultCommandTimeout bounds every vendor tool invocation
const DefaultCommandTimeout = 2 * time.Second

// Runner executes an external command and returns its trimmed stdout
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// CommandRunner spawns external tools with a hard timeout. Every failure is
// normalized to one of the ferrors source sentinels. A tool that cannot be
// found three times in a row is not spawned again until its breaker times
// out.
type CommandRunner struct {
	timeout  time.Duration
	breakers *ferrors.CircuitBreakerGroup
	logger   *slog.Logger
}

// NewCommandRunner creates a runner with the given per-call timeout
func NewCommandRunner(timeout time.Duration, logger *slog.Logger) *CommandRunner {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg := ferrors.DefaultCircuitBreakerConfig()
	cfg.OnStateChange = func(name string, from, to ferrors.CircuitBreakerState) {
		metrics.CommandBreakerState.WithLabelValues(name).Set(float64(to))
		logger.Debug("Command circuit breaker changed state", "command", name, "from", from.String(), "to", to.String())
	}

	return &CommandRunner{
		timeout:  timeout,
		breakers: ferrors.NewCircuitBreakerGroup(cfg),
		logger:   logger,
	}
}

// Run executes name with args. It never retries.
func (r *CommandRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	var out string
	err := r.breakers.Execute(name, func() error {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		var stdout bytes.Buffer
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Stdout = &stdout

		err := cmd.Run()
		switch {
		case err == nil:
			out = strings.TrimSpace(stdout.String())
			return nil
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return ferrors.Wrapf(ferrors.ErrSourceTimeout, "%s after %s", name, r.timeout)
		case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
			return ferrors.Wrap(ferrors.ErrToolMissing, name)
		default:
			return ferrors.Wrapf(ferrors.ErrSourceUnavailable, "%s: %v", name, err)
		}
	})
	if err != nil {
		r.logger.Debug("Command failed", "command", name, "args", args, "error", err)
		return "", err
	}
	return out, nil
}

// Breakers returns the state of each command's circuit breaker
func (r *CommandRunner) Breakers() map[string]ferrors.BreakerStats {
	return r.breakers.Stats()
}
