package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/NunoCorreia78/Biodesk-sub001/internal/assessment"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/estop"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/events"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/protocol"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/sessionlog"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/telemetry"
)

var runAssessmentCmd = &cobra.Command{
	Use:   "run-assessment",
	Args:  cobra.NoArgs,
	Short: "Run a baseline-then-sweep frequency assessment",
	RunE:  runAssessment,
}

func init() {
	runAssessmentCmd.Flags().Float64Slice("frequencies", nil, "candidate frequencies in Hz")
	runAssessmentCmd.Flags().Float64("dwell-s", 1.0, "seconds to test each frequency")
	runAssessmentCmd.Flags().Float64("test-amp-vpp", 0.5, "test amplitude, volts peak-to-peak")
	runAssessmentCmd.Flags().Float64("r-shunt-ohm", 1000, "shunt resistor value in ohms")
	runAssessmentCmd.Flags().Int("top-n", 5, "number of best frequencies to report")
	runAssessmentCmd.Flags().Float64("baseline-duration-s", 2.0, "baseline capture duration in seconds")
	runAssessmentCmd.Flags().Float64("sample-rate-hz", 10000, "acquisition sample rate in Hz")
	runAssessmentCmd.Flags().Float64("voltage-range-v", 5, "scope input voltage range")
	runAssessmentCmd.Flags().Bool("randomize-order", false, "test candidate frequencies in random order")
	runAssessmentCmd.Flags().String("stop-file", "", "path to a file whose presence aborts the run (polled); also watches SIGINT/SIGTERM")
	runAssessmentCmd.Flags().String("metrics-addr", "", "if set, serve live /metrics on this address for the duration of the run")
}

func runAssessment(cmd *cobra.Command, args []string) error {
	frequencies, _ := cmd.Flags().GetFloat64Slice("frequencies")
	if len(frequencies) == 0 {
		return fmt.Errorf("--frequencies flag is required")
	}
	dwellS, _ := cmd.Flags().GetFloat64("dwell-s")
	testAmpVpp, _ := cmd.Flags().GetFloat64("test-amp-vpp")
	rShuntOhm, _ := cmd.Flags().GetFloat64("r-shunt-ohm")
	topN, _ := cmd.Flags().GetInt("top-n")
	baselineDurationS, _ := cmd.Flags().GetFloat64("baseline-duration-s")
	sampleRateHz, _ := cmd.Flags().GetFloat64("sample-rate-hz")
	voltageRangeV, _ := cmd.Flags().GetFloat64("voltage-range-v")
	randomizeOrder, _ := cmd.Flags().GetBool("randomize-order")
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

	sweepCfg := protocol.AssessmentConfig{
		Frequencies:       frequencies,
		DwellS:            dwellS,
		TestAmpVpp:        testAmpVpp,
		RShuntOhm:         rShuntOhm,
		TopN:              topN,
		BaselineDurationS: baselineDurationS,
		SampleRateHz:      sampleRateHz,
		VoltageRangeV:     voltageRangeV,
		RandomizeOrder:    randomizeOrder,
		SafetyLimits:      &cfg.Safety,
	}

	logger.Info("starting assessment", "candidate_count", len(frequencies), "top_n", topN)

	collect := &events.CollectSink{}
	sink := &sessionSink{collect: collect, apply: applyAssessmentEvent}
	if metricsAddr != "" {
		sink.exporter = telemetry.NewSessionExporter()
		sink.exporter.SetState(assessmentStates, "idle")
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
	worker := assessment.New(io, sink, logger)

	ctrl := estop.New(stopFile, 0)
	ctrl.OnTrip(func(reason string) { worker.Abort() })
	ctx, cancel := context.WithCancel(context.Background())
	ctrl.Start(ctx)
	defer func() {
		ctrl.Stop()
		cancel()
	}()

	startedAt := time.Now()
	results, err := worker.Start(ctx, sweepCfg)
	if err != nil {
		logger.Error("assessment failed", "error", err)
		return err
	}

	for i, r := range results {
		logger.Info("ranked result", "rank", i+1, "frequency_hz", r.Frequency, "score", r.Score, "is_valid", r.IsValid)
	}

	var baseline *protocol.Baseline
	for _, e := range collect.Events {
		if e.Kind == events.KindBaselineMeasured {
			baseline = e.Baseline
		}
	}
	payload, _ := json.Marshal(struct {
		Baseline *protocol.Baseline         `json:"baseline"`
		Results  []protocol.FrequencyResult `json:"results"`
	}{baseline, results})
	store := newReportStore()
	reportPath, saveErr := store.Save(sessionlog.Report{
		Kind:       "assessment",
		Name:       fmt.Sprintf("sweep-%d-candidates", len(frequencies)),
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Outcome:    "finished",
		Payload:    payload,
	})
	if saveErr != nil {
		logger.Warn("failed to persist session report", "error", saveErr)
	} else {
		logger.Info("session report saved", "path", reportPath)
	}

	return nil
}
