package cmd

import (
	"fmt"
	"os"

	"github.com/audiolibrelab/sleepstage/internal/export"
	"github.com/audiolibrelab/sleepstage/internal/service"

	"github.com/spf13/cobra"
)

var featuresCmd = &cobra.Command{
	Use:   "features [recording.edf]",
	Short: "Extract the per-epoch feature table of a recording",
	Long: `Filter, epoch and featurize the configured channels of a recording and
print the resulting feature table (one row per epoch, columns sorted by name).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recordingPath := args[0]
		if err := applyOverrides(cmd); err != nil {
			return err
		}

		svc := service.New(cfg, cfgFile, nil)
		defer svc.Close()

		table, err := svc.Features(recordingPath)
		if err != nil {
			return fmt.Errorf("feature extraction failed: %w", err)
		}
		if err := export.WriteFeatures(cfg.Output.Format, os.Stdout, table); err != nil {
			return fmt.Errorf("failed to write features: %w", err)
		}

		// Execute pipeline if specified
		return executePipeline(svc, recordingPath, 'f')
	},
}

func init() {
	addOverrideFlags(featuresCmd)
}
