package cmd

import (
	"fmt"
	"os"

	"github.com/audiolibrelab/sleepstage/internal/export"
	"github.com/audiolibrelab/sleepstage/internal/service"

	"github.com/spf13/cobra"
)

var predictCmd = &cobra.Command{
	Use:   "predict [recording.edf]",
	Short: "Predict the hypnogram of a recording",
	Long: `Predict one sleep stage per epoch with the configured classifier and print
the hypnogram with each epoch's onset and confidence.

The model defaults to the profile's model.path; "auto" picks the model
matching the configured channel roles and metadata from model.directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recordingPath := args[0]
		if err := applyOverrides(cmd); err != nil {
			return err
		}
		opts := stageOptions(cmd)

		svc := service.New(cfg, cfgFile, nil)
		defer svc.Close()

		res, err := svc.Stage(recordingPath, opts)
		if err != nil {
			return fmt.Errorf("prediction failed: %w", err)
		}

		h := export.Hypnogram{Onsets: res.Onsets, Stages: res.Hypnogram, Confidence: res.Probabilities.Confidence()}
		if err := export.WriteHypnogram(cfg.Output.Format, os.Stdout, h); err != nil {
			return fmt.Errorf("failed to write hypnogram: %w", err)
		}
		if res.RunID != "" {
			fmt.Fprintf(os.Stderr, "Run saved: %s\n", res.RunID)
		}

		// Execute pipeline if specified
		return executePipeline(svc, recordingPath, 'h')
	},
}

var probaCmd = &cobra.Command{
	Use:   "proba [recording.edf]",
	Short: "Predict per-epoch class probabilities of a recording",
	Long: `Predict the probability of every sleep stage for each epoch and print the
probability table. With --majority-only, all but the most likely stage of
each epoch are zeroed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recordingPath := args[0]
		if err := applyOverrides(cmd); err != nil {
			return err
		}
		opts := stageOptions(cmd)
		opts.MajorityOnly, _ = cmd.Flags().GetBool("majority-only")

		svc := service.New(cfg, cfgFile, nil)
		defer svc.Close()

		res, err := svc.Stage(recordingPath, opts)
		if err != nil {
			return fmt.Errorf("prediction failed: %w", err)
		}

		if err := export.WriteProbabilities(cfg.Output.Format, os.Stdout, res.Probabilities, res.Onsets); err != nil {
			return fmt.Errorf("failed to write probabilities: %w", err)
		}
		if res.RunID != "" {
			fmt.Fprintf(os.Stderr, "Run saved: %s\n", res.RunID)
		}

		// Execute pipeline if specified
		return executePipeline(svc, recordingPath, 'p')
	},
}

func stageOptions(cmd *cobra.Command) service.StageOptions {
	model, _ := cmd.Flags().GetString("model")
	save, _ := cmd.Flags().GetBool("save")
	return service.StageOptions{ModelRef: model, Save: save}
}

func init() {
	for _, c := range []*cobra.Command{predictCmd, probaCmd} {
		c.Flags().StringP("model", "m", "", `model reference: "auto" or a model file (overrides config)`)
		c.Flags().Bool("save", false, "record the run in the run store")
		addOverrideFlags(c)
	}
	probaCmd.Flags().Bool("majority-only", false, "keep only the most likely stage of each epoch")
}
