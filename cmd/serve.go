package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/audiolibrelab/sleepstage/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP staging server",
	Long: `Serve the staging pipeline over HTTP with the active profile of the
configuration file. Staging requests are handled one at a time.

  POST /api/stage        multipart upload of an EDF file in the "recording"
                         field; optional "model", "majority_only" and "save"
                         (default true) fields. Returns the hypnogram,
                         probabilities and the run ID when saved
  GET  /api/runs         saved runs, newest first
  GET  /api/runs/{id}    one saved run with its probabilities
  GET  /api/status       active profile, channels, epoch length, model and
                         the last error
  GET  /config/profiles  profiles defined in the configuration file
  POST /config/select    switch the active profile
  GET  /metrics          Prometheus metrics

Validation and feature-mismatch errors answer 422, a missing model or run
404, anything else 500.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")

		// Handle config file path - use default if not specified
		configPath := cfgFile
		if configPath == "" {
			configPath = os.ExpandEnv("$HOME/.config/sleepstage.yaml")
		}

		srv, err := server.New(configPath, port)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		slog.Info("SleepStage web server starting", "port", port, "config", configPath)

		// Start server (this blocks)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "8080", "port for the web server")
}
