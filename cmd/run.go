package cmd

import (
	"fmt"
	"strings"

	"github.com/audiolibrelab/sleepstage/internal/service"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [recording.edf]",
	Short: "Execute pipeline steps on a recording",
	Long: `Execute the specified pipeline steps on a recording. Use -p to specify which steps to run.
Each step writes <recording>_<kind>.<format> to the output directory:

  f  feature table
  h  hypnogram with per-epoch confidence
  p  class probabilities

Predicted runs are also recorded in the run store.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recordingPath := args[0]

		if pipeline == "" {
			return fmt.Errorf("no pipeline specified, use -p flag (e.g., -p fhp)")
		}
		if err := applyOverrides(cmd); err != nil {
			return err
		}

		steps := strings.ToLower(pipeline)

		// Create service instance
		svc := service.New(cfg, cfgFile, nil)
		defer svc.Close()

		fmt.Printf("Pipeline: executing steps '%s' on %s...\n", steps, recordingPath)
		if err := svc.RunPipeline(recordingPath, steps); err != nil {
			return fmt.Errorf("pipeline failed: %w", err)
		}
		fmt.Printf("Pipeline: outputs written to %s\n", cfg.Output.Directory)

		return nil
	},
}

func init() {
	addOverrideFlags(runCmd)
}
