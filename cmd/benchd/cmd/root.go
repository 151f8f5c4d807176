package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"benchd.sh/internal/config"
	"benchd.sh/internal/version"
)

var (
	cfgFile string
	noColor bool

	// v collects flag bindings; config.Load adds defaults, env and file
	v = viper.New()

	// Color functions
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "benchd",
	Short: "benchd - health metrics for a hardware-in-the-loop bench",
	Long: `benchd reports operating-system health of the Raspberry Pi that drives a
hardware-in-the-loop test bench: CPU, memory, temperature, supply voltage
and throttling, network, disk and process counts.

It serves one-shot snapshots over HTTP and a periodic WebSocket stream.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError("%v", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./benchd.yaml or /etc/benchd/benchd.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(
		newServeCmd(),
		newSnapshotCmd(),
		newWatchCmd(),
		newTopCmd(),
		newDiscoverCmd(),
		newVersionCmd(),
	)
}

// loadConfig resolves configuration from flags, BENCHD_* env and file
func loadConfig() (*config.Config, error) {
	return config.Load(v, cfgFile)
}

func printSuccess(format string, a ...any) {
	fmt.Printf("%s %s\n", green("[OK]"), fmt.Sprintf(format, a...))
}

func printError(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", red("[ERROR]"), fmt.Sprintf(format, a...))
}

func printWarning(format string, a ...any) {
	fmt.Printf("%s %s\n", yellow("[WARN]"), fmt.Sprintf(format, a...))
}

func printInfo(format string, a ...any) {
	fmt.Printf("%s %s\n", blue("[INFO]"), fmt.Sprintf(format, a...))
}
