package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/NunoCorreia78/Biodesk-sub001/internal/telemetry"
)

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Args:  cobra.NoArgs,
	Short: "Serve an idle Prometheus /metrics endpoint for scrape-config smoke testing",
	Long: `serve-metrics exposes the same metric names and state labels that
run-protocol/run-assessment populate when invoked with their own
--metrics-addr flag, but holds every gauge at its idle value: useful
for verifying a Prometheus scrape configuration against bioctl's
metric surface before a real session is scheduled. To observe a live
session's gauges, pass --metrics-addr to run-protocol or
run-assessment directly instead.`,
	RunE: runServeMetrics,
}

func init() {
	serveMetricsCmd.Flags().String("addr", ":9109", "listen address for the /metrics endpoint")
}

func runServeMetrics(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	logger := newLogger()

	exporter := telemetry.NewSessionExporter()
	exporter.SetState(assessmentStates, "idle")
	exporter.SetState(runnerStates, "idle")

	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter.Handler())

	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		return fmt.Errorf("serve-metrics: %w", err)
	}
	return nil
}
