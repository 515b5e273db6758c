package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NunoCorreia78/Biodesk-sub001/internal/safety"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Args:  cobra.NoArgs,
	Short: "Validate a protocol file and/or the active configuration against the safety kernel, without touching hardware",
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().String("protocol", "", "path to a protocol YAML file to validate (optional)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Println("config: OK")

	protocolPath, _ := cmd.Flags().GetString("protocol")
	if protocolPath == "" {
		return nil
	}

	p, err := loadProtocolFile(protocolPath)
	if err != nil {
		return fmt.Errorf("load protocol: %w", err)
	}

	limits := cfg.Safety
	if p.SafetyLimits != nil {
		limits = *p.SafetyLimits
	}

	var anyFault bool
	maxDwellS := limits.MaxSingleFrequencyDurationMin * 60
	for i, step := range p.Steps {
		out := safety.AssertSafeOutput(step.AmpVpp, step.OffsetV, limits)
		for _, f := range out.Faults {
			anyFault = true
			fmt.Printf("step %d: %s: %s\n", i, f.Kind, f.Detail)
		}
		freq := safety.ValidateFrequency(step.Hz, limits)
		for _, f := range freq.Faults {
			anyFault = true
			fmt.Printf("step %d: %s: %s\n", i, f.Kind, f.Detail)
		}
		if step.DwellS > maxDwellS {
			anyFault = true
			fmt.Printf("step %d: %s: %.3f > %.3f\n", i, safety.DurationExceedsMax, step.DwellS, maxDwellS)
		}
	}

	if anyFault {
		return fmt.Errorf("protocol %s failed safety validation", protocolPath)
	}
	fmt.Printf("protocol %s: OK (%d steps, %.1fs total)\n", protocolPath, len(p.Steps), p.TotalDurationS())
	return nil
}
