package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"benchd.sh/internal/discovery"
)

// newDiscoverCmd creates the discover command
func newDiscoverCmd() *cobra.Command {
	var (
		timeout time.Duration
		service string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find benches advertising on the local network",
		Long: `Query mDNS for benchd instances started with --mdns and list where
their API and stream can be reached.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !asJSON {
				printInfo("Scanning network for benches (%s)...", timeout)
			}

			benches, err := discovery.Browse(cmd.Context(), service, timeout)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(benches)
			}

			if len(benches) == 0 {
				printWarning("No benches found")
				return nil
			}

			fmt.Printf("\n%s\n", bold("Discovered Benches"))
			writeBenchTable(os.Stdout, benches)
			printSuccess("Found %d bench(es)", len(benches))
			return nil
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 3*time.Second, "discovery timeout")
	cmd.Flags().StringVar(&service, "service", discovery.DefaultServiceName, "mDNS service name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")

	return cmd
}

func writeBenchTable(out io.Writer, benches []discovery.Bench) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INSTANCE\tADDRESS\tPORT\tVERSION\tURL")
	for _, b := range benches {
		version := b.Version
		if version == "" {
			version = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", b.Instance, b.Address, b.Port, version, b.URL())
	}
	w.Flush()
}
