package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"benchd.sh/internal/config"
)

func newSnapshotCmd() *cobra.Command {
	var (
		output string
		assess bool
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Collect and print one snapshot locally",
		Long: `Assemble a single snapshot on this machine without starting the server,
exactly as GET /api/v1/health would return it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runSnapshot(cmd.Context(), cfg, os.Stdout, output, assess)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format (json, yaml)")
	cmd.Flags().BoolVar(&assess, "assess", false, "include the health assessment")

	return cmd
}

func runSnapshot(ctx context.Context, cfg *config.Config, w io.Writer, output string, assess bool) error {
	if output != "json" && output != "yaml" {
		return fmt.Errorf("unsupported output format %q", output)
	}

	// Fallback notices would interleave with the document
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := newPipeline(cfg, quiet)

	snap := p.assembler.Assemble(ctx)

	var doc any = snap
	if assess {
		doc = p.assessor.NewReport(snap)
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if output == "yaml" {
		if body, err = jsonToYAML(body); err != nil {
			return err
		}
	} else {
		body = append(body, '\n')
	}

	_, err = w.Write(body)
	return err
}

// jsonToYAML re-encodes a JSON document as block-style YAML, keeping the
// JSON key order and field names.
func jsonToYAML(body []byte) ([]byte, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(body, &node); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	blockStyle(&node)

	out, err := yaml.Marshal(&node)
	if err != nil {
		return nil, fmt.Errorf("failed to encode yaml: %w", err)
	}
	return out, nil
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
