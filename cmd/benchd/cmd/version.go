package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"benchd.sh/internal/version"
)

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	var (
		short  bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printVersion(os.Stdout, version.Get(), short, asJSON)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Show only version number")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output version in JSON format")

	return cmd
}

func printVersion(w io.Writer, info version.Info, short, asJSON bool) error {
	switch {
	case short:
		_, err := fmt.Fprintln(w, info.Version)
		return err
	case asJSON:
		return json.NewEncoder(w).Encode(info)
	}

	fmt.Fprintf(w, "%s\n", bold("benchd"))
	fmt.Fprintf(w, "Version:    %s\n", info.Version)
	fmt.Fprintf(w, "Commit:     %s\n", info.CommitSHA)
	fmt.Fprintf(w, "Built:      %s\n", info.BuildTime)
	fmt.Fprintf(w, "Go Version: %s\n", info.GoVersion)
	fmt.Fprintf(w, "OS/Arch:    %s\n", info.Platform)
	return nil
}
