package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/NunoCorreia78/Biodesk-sub001/internal/estop"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/events"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/protocolrunner"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/sessionlog"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/telemetry"
)

var runProtocolCmd = &cobra.Command{
	Use:   "run-protocol",
	Args:  cobra.NoArgs,
	Short: "Run a stimulation protocol loaded from a YAML file",
	RunE:  runProtocol,
}

func init() {
	runProtocolCmd.Flags().String("protocol", "", "path to a protocol YAML file")
	runProtocolCmd.Flags().String("stop-file", "", "path to a file whose presence aborts the run (polled); also watches SIGINT/SIGTERM")
	runProtocolCmd.Flags().String("metrics-addr", "", "if set, serve live /metrics on this address for the duration of the run")
}

func runProtocol(cmd *cobra.Command, args []string) error {
	protocolPath, _ := cmd.Flags().GetString("protocol")
	if protocolPath == "" {
		return fmt.Errorf("--protocol flag is required")
	}
	stopFile, _ := cmd.Flags().GetString("stop-file")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	io, err := bindHardware()
	if err != nil {
		return err
	}

	p, err := loadProtocolFile(protocolPath)
	if err != nil {
		return fmt.Errorf("load protocol: %w", err)
	}
	p.SafetyLimits = &cfg.Safety

	logger.Info("starting protocol", "name", p.Name, "steps", len(p.Steps), "total_duration_s", p.TotalDurationS())

	collect := &events.CollectSink{}
	sink := &sessionSink{collect: collect, apply: applyRunnerEvent}
	if metricsAddr != "" {
		sink.exporter = telemetry.NewSessionExporter()
		sink.exporter.SetState(runnerStates, "idle")
		mux := http.NewServeMux()
		mux.Handle("/metrics", sink.exporter.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
	}
	runner := protocolrunner.New(io, sink, logger)

	ctrl := estop.New(stopFile, 0)
	ctrl.OnTrip(func(reason string) { runner.Abort(reason) })
	ctx, cancel := context.WithCancel(context.Background())
	ctrl.Start(ctx)
	defer func() {
		ctrl.Stop()
		cancel()
	}()

	startedAt := time.Now()
	if err := runner.Start(p); err != nil {
		logger.Error("protocol rejected", "error", err)
		return err
	}

	for runner.State() != protocolrunner.Idle && runner.State() != protocolrunner.Error {
		time.Sleep(50 * time.Millisecond)
	}

	outcome := "finished"
	if runner.State() == protocolrunner.Error {
		outcome = "error"
	}
	for _, e := range collect.Events {
		if e.Kind == events.KindAborted {
			outcome = "aborted"
		}
	}

	payload, _ := json.Marshal(p)
	store := newReportStore()
	reportPath, err := store.Save(sessionlog.Report{
		Kind:       "protocol",
		Name:       p.Name,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Outcome:    outcome,
		Payload:    payload,
	})
	if err != nil {
		logger.Warn("failed to persist session report", "error", err)
	} else {
		logger.Info("session report saved", "path", reportPath)
	}

	logger.Info("protocol run complete", "outcome", outcome)
	return nil
}
