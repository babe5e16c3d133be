package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/sleepstage/internal/config"
	"github.com/audiolibrelab/sleepstage/internal/export"
	"github.com/audiolibrelab/sleepstage/internal/service"
	"github.com/audiolibrelab/sleepstage/internal/staging"
)

// applyOverrides copies --channel, --output and --format onto the loaded config
func applyOverrides(cmd *cobra.Command) error {
	if pairs, _ := cmd.Flags().GetStringArray("channel"); len(pairs) > 0 {
		picks, err := staging.ParsePicks(pairs)
		if err != nil {
			return err
		}
		channels := make([]config.Channel, len(picks))
		for i, pick := range picks {
			channels[i] = config.Channel{Name: string(pick.Role), Label: pick.Label, Role: string(pick.Role)}
		}
		cfg.Channels = channels
	}
	if dir, _ := cmd.Flags().GetString("output"); dir != "" {
		cfg.Output.Directory = dir
	}
	if format, _ := cmd.Flags().GetString("format"); format != "" {
		cfg.Output.Format = format
	}
	if _, ok := export.Lookup(cfg.Output.Format); !ok {
		return fmt.Errorf("unknown output format %q", cfg.Output.Format)
	}
	return nil
}

// executePipeline runs the pipeline steps that follow startStep
func executePipeline(svc service.Service, recordingPath string, startStep rune) error {
	if pipeline == "" {
		return nil
	}

	steps := strings.ToLower(pipeline)

	// Find the starting position in the pipeline
	startIndex := strings.IndexRune(steps, startStep)
	if startIndex == -1 {
		return fmt.Errorf("step '%c' not found in pipeline '%s'", startStep, pipeline)
	}

	remaining := steps[startIndex+1:]
	if remaining == "" {
		return nil
	}

	fmt.Printf("Pipeline: executing steps '%s'...\n", remaining)
	if err := svc.RunPipeline(recordingPath, remaining); err != nil {
		return err
	}
	fmt.Println("Pipeline: completed")
	return nil
}

func validatePipeline() error {
	if pipeline == "" {
		return nil
	}

	validSteps := map[rune]bool{
		'f': true, // features
		'h': true, // hypnogram
		'p': true, // probabilities
	}

	steps := []rune(strings.ToLower(pipeline))
	for _, step := range steps {
		if !validSteps[step] {
			return fmt.Errorf("invalid pipeline step: '%c' (valid: f=features, h=hypnogram, p=probabilities)", step)
		}
	}

	return nil
}

// addOverrideFlags registers the flags read by applyOverrides
func addOverrideFlags(c *cobra.Command) {
	c.Flags().StringArray("channel", nil, "channel assignment role=label, repeatable (replaces the profile's channels)")
	c.Flags().StringP("output", "o", "", "output directory (overrides config)")
	c.Flags().StringP("format", "f", "", "output format: csv, tsv or json (overrides config)")
}
