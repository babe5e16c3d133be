package cmd

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/sleepstage/internal/config"
)

func TestApplyOverrides_Channels(t *testing.T) {
	cfg = config.Default()
	defer func() { cfg = nil }()

	c := &cobra.Command{Use: "test"}
	addOverrideFlags(c)
	if err := c.ParseFlags([]string{"--channel", "eeg=C4-M1", "--channel", "EOG=LOC", "-f", "tsv"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if err := applyOverrides(c); err != nil {
		t.Fatalf("applyOverrides: %v", err)
	}

	if len(cfg.Channels) != 2 {
		t.Fatalf("Expected 2 channels, got %d", len(cfg.Channels))
	}
	if cfg.Channels[0].Role != "eeg" || cfg.Channels[0].Label != "C4-M1" {
		t.Errorf("Unexpected first channel: %+v", cfg.Channels[0])
	}
	if cfg.Channels[1].Role != "eog" || cfg.Channels[1].Label != "LOC" {
		t.Errorf("Unexpected second channel: %+v", cfg.Channels[1])
	}
	if cfg.Output.Format != "tsv" {
		t.Errorf("Expected format tsv, got %s", cfg.Output.Format)
	}
}

func TestApplyOverrides_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown role", []string{"--channel", "resp=Thorax"}},
		{"missing label", []string{"--channel", "eeg"}},
		{"unknown format", []string{"-f", "xlsx"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg = config.Default()
			defer func() { cfg = nil }()

			c := &cobra.Command{Use: "test"}
			addOverrideFlags(c)
			if err := c.ParseFlags(tt.args); err != nil {
				t.Fatalf("ParseFlags: %v", err)
			}
			if err := applyOverrides(c); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestValidatePipeline(t *testing.T) {
	defer func() { pipeline = "" }()

	for _, steps := range []string{"", "f", "fhp", "HP"} {
		pipeline = steps
		if err := validatePipeline(); err != nil {
			t.Errorf("Pipeline %q: unexpected error: %v", steps, err)
		}
	}
	pipeline = "fx"
	if err := validatePipeline(); err == nil {
		t.Error("Expected an error for step 'x'")
	}
}

func TestServeHelpListsRoutes(t *testing.T) {
	for _, route := range []string{"/api/stage", "/api/runs", "/api/status", "/config/profiles", "/config/select", "/metrics"} {
		if !strings.Contains(serveCmd.Long, route) {
			t.Errorf("serve help does not mention %s", route)
		}
	}
}
