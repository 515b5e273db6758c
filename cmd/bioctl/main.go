// Command bioctl is the operator-facing CLI for the bioelectric therapy
// controller: it loads a configuration, binds a hardware backend, and
// runs a protocol or an assessment sweep against it, emitting
// structured logs and an optional Prometheus /metrics endpoint.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	verbose      bool
	hardwareKind string
	version      = "dev" // set by build flags
)

var rootCmd = &cobra.Command{
	Use:     "bioctl",
	Short:   "Bioelectric therapy controller CLI",
	Version: version,
	Long: `bioctl drives a bioelectric stimulation protocol or a frequency
assessment sweep against a connected generator/scope, enforcing the
safety kernel's limits before any output is produced.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file (default: built-in clinical defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.PersistentFlags().StringVar(&hardwareKind, "hardware", "none", "hardware backend: \"replay\" for the deterministic fixture; \"none\" and any other value error")

	rootCmd.AddCommand(runProtocolCmd)
	rootCmd.AddCommand(runAssessmentCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serveMetricsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
