package cmd

import (
	"fmt"

	"github.com/audiolibrelab/sleepstage/internal/config"
	"github.com/audiolibrelab/sleepstage/internal/service"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [recording.edf]",
	Short: "Show resolved configuration and output paths for a recording",
	Long:  `Display the resolved configuration with inheritance indicators and the output paths the pipeline steps would write for the given recording. Shows which values are inherited from default vs profile-specific.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recordingPath := args[0]
		inh := cfg.Inheritance
		if inh == nil {
			inh = &config.InheritanceInfo{}
		}

		// Display file paths
		fmt.Printf("=== FILE PATHS ===\n")
		fmt.Printf("features: %s\n", service.OutputPath(cfg, recordingPath, service.KindFeatures))
		fmt.Printf("hypnogram: %s\n", service.OutputPath(cfg, recordingPath, service.KindHypnogram))
		fmt.Printf("probabilities: %s\n", service.OutputPath(cfg, recordingPath, service.KindProbabilities))
		if cfg.Store.Path != "" {
			fmt.Printf("run_store: %s\n", cfg.Store.Path)
		}

		fmt.Printf("\n=== RESOLVED CONFIGURATION (%s) ===\n", cfg.Profile)

		fmt.Printf("\n[Channels] %s\n", getInheritanceIndicator(inh.Channels))
		for i, ch := range cfg.Channels {
			fmt.Printf("%d. name: %s\n", i, ch.Name)
			fmt.Printf("   label: %s\n", ch.Label)
			fmt.Printf("   role: %s\n", ch.Role)
		}

		fmt.Printf("\n[Epoch]\n")
		fmt.Printf("seconds: %g %s\n", cfg.Epoch.Seconds, getInheritanceIndicator(inh.Epoch))

		fmt.Printf("\n[Smoothing]\n")
		fmt.Printf("centered_minutes: %g %s\n", cfg.Smoothing.CenteredMinutes, getInheritanceIndicator(inh.Smoothing))
		fmt.Printf("past_minutes: %g %s\n", cfg.Smoothing.PastMinutes, getInheritanceIndicator(inh.Smoothing))

		fmt.Printf("\n[Metadata] %s\n", getInheritanceIndicator(inh.Metadata))
		md, err := cfg.SubjectMetadata()
		if err != nil {
			return err
		}
		if md == nil {
			fmt.Printf("none\n")
		} else {
			if md.Age != nil {
				fmt.Printf("age: %g\n", *md.Age)
			}
			if md.Male != nil {
				fmt.Printf("male: %t\n", *md.Male)
			}
		}

		fmt.Printf("\n[Model]\n")
		fmt.Printf("path: %s %s\n", cfg.Model.Path, getInheritanceIndicator(inh.Model))
		fmt.Printf("directory: %s\n", cfg.Model.Directory)
		fmt.Printf("version: %s\n", cfg.Model.Version)

		fmt.Printf("\n[Output]\n")
		fmt.Printf("directory: %s %s\n", cfg.Output.Directory, getInheritanceIndicator(inh.Output.Directory))
		fmt.Printf("format: %s %s\n", cfg.Output.Format, getInheritanceIndicator(inh.Output.Format))

		return nil
	},
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	default:
		return "[unknown]"
	}
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
