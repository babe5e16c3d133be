package cmd

import (
	"fmt"
	"strings"

	"github.com/audiolibrelab/sleepstage/internal/recording"

	"github.com/spf13/cobra"
)

var channelsCmd = &cobra.Command{
	Use:   "channels [recording.edf]",
	Short: "List the signals of an EDF recording",
	Long: `List the signals stored in an EDF/EDF+ file with their dimension and
sampling rate. When a configuration is given, signals used by the active
profile are marked with their role.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := recording.Inspect(args[0])
		if err != nil {
			return err
		}

		// Roles assigned by the profile, if a config was loaded
		roles := make(map[string]string)
		if cfg != nil {
			for _, ch := range cfg.Channels {
				roles[ch.Label] = ch.Role
			}
		}

		fmt.Printf("Recording: %s\n", info.Path)
		if !info.Start.IsZero() {
			fmt.Printf("Start: %s\n", info.Start.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("Duration: %s (%d records of %s)\n", info.Duration(), info.Records, info.RecordDuration)
		fmt.Printf("\nSIGNALS (%d found):\n", len(info.Signals))
		for _, sig := range info.Signals {
			if sig.Annotation {
				fmt.Printf("  %2d. %s (annotations)\n", sig.Index, sig.Label)
				continue
			}
			line := fmt.Sprintf("  %2d. %-16s %-6s %g Hz", sig.Index, sig.Label, sig.Dimension, sig.SamplingRate)
			if role, ok := roles[sig.Label]; ok {
				line += "  [" + strings.ToUpper(role) + "]"
			}
			fmt.Println(line)
		}

		if len(roles) > 0 {
			for label, role := range roles {
				if !hasSignal(info, label) {
					fmt.Printf("\nWarning: %s channel '%s' is not in this recording\n", role, label)
				}
			}
		}
		return nil
	},
}

func hasSignal(info *recording.Info, label string) bool {
	for _, sig := range info.Signals {
		if sig.Label == label {
			return true
		}
	}
	return false
}
