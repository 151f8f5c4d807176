package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"benchd.sh/internal/health"
	"benchd.sh/internal/models"
	"benchd.sh/internal/retry"
	"benchd.sh/internal/tui"
	"benchd.sh/pkg/benchclient"
)

func newTopCmd() *cobra.Command {
	var (
		serverURL string
		insecure  bool
	)

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Live dashboard of a bench",
		Long: `Open a full-screen dashboard fed by a bench's snapshot stream. The
dashboard keeps a CPU history, badges the current verdict and logs every
verdict change and connection drop.`,
		Example: `  benchd top --url http://bench-01.local:8000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.New("top needs a terminal, use watch for plain output")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			assessor := health.NewAssessor(cfg.Health)

			// Log lines would tear the alternate screen
			quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
			client, err := newBenchClient(serverURL, insecure, benchclient.WithLogger(quiet))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			p := tea.NewProgram(tui.NewDashboard(client.BaseURL()), tea.WithContext(ctx))

			streamErr := make(chan error, 1)
			go func() {
				streamErr <- followInto(ctx, client, assessor, p.Send)
			}()

			_, runErr := p.Run()
			cancel()

			if err := <-streamErr; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
				return runErr
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "url", "http://localhost:8000", "bench URL (http, https, ws or wss)")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "skip TLS certificate verification (self-signed benches)")

	return cmd
}

// followInto feeds the dashboard until ctx ends or the bench rejects the
// stream for good, in which case the program is told to quit.
func followInto(ctx context.Context, client *benchclient.Client, assessor *health.Assessor, send func(tea.Msg)) error {
	err := client.Follow(ctx, retry.StreamConfig(), func(s models.Snapshot) error {
		send(tui.SnapshotMsg{Snapshot: s, Verdict: assessor.Assess(s)})
		return nil
	}, func(err error, _ time.Duration) {
		if err == nil {
			err = errors.New("closed by server")
		}
		send(tui.ConnectionMsg{Err: err})
	})

	if ctx.Err() == nil {
		send(tui.ConnectionMsg{Err: err})
		send(tea.Quit())
	}
	return err
}
