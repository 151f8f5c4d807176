package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"benchd.sh/internal/health"
	"benchd.sh/internal/models"
	"benchd.sh/internal/retry"
	"benchd.sh/pkg/benchclient"
)

var errWatchDone = errors.New("watch limit reached")

func newWatchCmd() *cobra.Command {
	var (
		serverURL string
		count     int
		reconnect bool
		insecure  bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a bench's snapshot stream",
		Long: `Connect to a running benchd and print a one-line summary of every
streamed snapshot, assessed against the local health thresholds.

The stream is re-established with exponential backoff when the bench
restarts or the network drops, unless --reconnect=false is given.`,
		Example: `  benchd watch --url ws://bench-01.local:8000/ws/system-stream
  benchd watch --url http://192.168.1.40:8000 --count 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			assessor := health.NewAssessor(cfg.Health)

			client, err := newBenchClient(serverURL, insecure)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			printInfo("Streaming from %s", cyan(client.StreamURL()))

			seen := 0
			onSnapshot := func(s models.Snapshot) error {
				fmt.Println(summaryLine(s, assessor.Assess(s)))
				seen++
				if count > 0 && seen >= count {
					return errWatchDone
				}
				return nil
			}

			if reconnect {
				err = client.Follow(ctx, retry.StreamConfig(), onSnapshot, func(err error, delay time.Duration) {
					printWarning("Stream lost (%s), reconnecting in %s", disconnectReason(err), delay.Round(100*time.Millisecond))
				})
			} else {
				err = client.Stream(ctx, onSnapshot)
				if err == nil {
					printWarning("Stream closed by server after %d snapshots", seen)
				}
			}

			if errors.Is(err, errWatchDone) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&serverURL, "url", "ws://localhost:8000/ws/system-stream", "bench URL (http, https, ws or wss)")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "stop after n snapshots (0 streams until interrupted)")
	cmd.Flags().BoolVar(&reconnect, "reconnect", true, "reconnect with backoff when the stream drops")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "skip TLS certificate verification (self-signed benches)")

	return cmd
}

// newBenchClient creates a client, trusting any certificate when insecure
func newBenchClient(serverURL string, insecure bool, opts ...benchclient.ClientOption) (*benchclient.Client, error) {
	if insecure {
		opts = append(opts, benchclient.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}))
	}
	return benchclient.NewClient(serverURL, opts...)
}

func disconnectReason(err error) string {
	if err == nil {
		return "closed by server"
	}
	return err.Error()
}
