package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/audiolibrelab/sleepstage/internal/export"
	"github.com/audiolibrelab/sleepstage/internal/service"
	"github.com/audiolibrelab/sleepstage/internal/staging"

	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Browse staging runs recorded in the run store",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := service.New(cfg, cfgFile, nil)
		defer svc.Close()

		runs, err := svc.ListRuns()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded")
			return nil
		}

		fmt.Printf("RUNS (%d found):\n", len(runs))
		for _, run := range runs {
			fmt.Printf("  %s  %s  %-10s %4d epochs  %s\n",
				run.ID, run.CreatedAt.Local().Format("2006-01-02 15:04"), run.Profile, len(run.Hypnogram), run.RecordingPath)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show a recorded run and its hypnogram",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := service.New(cfg, cfgFile, nil)
		defer svc.Close()

		run, err := svc.GetRun(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("id: %s\n", run.ID)
		fmt.Printf("recording: %s\n", run.RecordingPath)
		fmt.Printf("profile: %s\n", run.Profile)
		fmt.Printf("model: %s\n", run.ModelRef)
		fmt.Printf("created: %s\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("epoch_seconds: %g\n", run.EpochSeconds)
		fmt.Printf("features: %s\n", strings.Join(run.FeatureColumns, ", "))

		counts := make(map[string]int)
		for _, stage := range run.Hypnogram {
			counts[stage]++
		}
		fmt.Printf("\nSTAGES (%d epochs):\n", len(run.Hypnogram))
		for _, label := range run.Classes {
			fmt.Printf("  %-4s %5d  %6.1f min\n", label, counts[label], float64(counts[label])*run.EpochSeconds/60)
		}

		if withHypnogram, _ := cmd.Flags().GetBool("hypnogram"); withHypnogram {
			onsets := run.Onsets
			if len(onsets) != len(run.Hypnogram) {
				onsets = make([]float64, len(run.Hypnogram))
				for i := range onsets {
					onsets[i] = float64(i) * run.EpochSeconds
				}
			}
			var conf []float64
			if len(run.Probabilities) == len(run.Hypnogram) {
				p := &staging.Probabilities{Labels: run.Classes, Values: run.Probabilities}
				conf = p.Confidence()
			}
			fmt.Println()
			h := export.Hypnogram{Onsets: onsets, Stages: run.Hypnogram, Confidence: conf}
			return export.WriteHypnogram(cfg.Output.Format, os.Stdout, h)
		}
		return nil
	},
}

func init() {
	runsShowCmd.Flags().Bool("hypnogram", false, "also print the per-epoch hypnogram")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}
