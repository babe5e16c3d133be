package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateConfigurationFormat_ValidConfig(t *testing.T) {
	validConfig := `
active_config: test

definitions:
  channels:
    - id: c4
      label: C4-M1
      role: eeg
    - id: loc
      label: E1-M2
      role: EOG

configs:
  test:
    channels:
      - ref: c4
      - ref: loc
        label: LOC
    output:
      directory: ~/SleepStage/Test
`

	configFile := createTempConfig(t, validConfig)

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	if rootConfig == nil {
		t.Fatal("Expected non-nil root config")
	}

	if rootConfig.Definitions == nil {
		t.Fatal("Expected definitions section")
	}

	if len(rootConfig.Definitions.Channels) != 2 {
		t.Errorf("Expected 2 channel definitions, got %d", len(rootConfig.Definitions.Channels))
	}

	def := rootConfig.Definitions.Channels[0]
	if def.ID != "c4" || def.Label != "C4-M1" || def.Role != "eeg" {
		t.Errorf("Invalid first definition: %+v", def)
	}

	testConfig := rootConfig.Configs["test"]
	if testConfig == nil {
		t.Fatal("Expected test config")
	}

	if len(testConfig.Channels) != 2 {
		t.Errorf("Expected 2 channel references, got %d", len(testConfig.Channels))
	}

	ref := testConfig.Channels[1]
	if ref.Ref != "loc" || ref.Label == nil || *ref.Label != "LOC" {
		t.Errorf("Invalid second reference: %+v", ref)
	}
}

func TestValidateConfigurationFormat_MissingDefinitions(t *testing.T) {
	configFile := createTempConfig(t, `
configs:
  test:
    channels:
      - ref: c4
`)

	_, err := ValidateConfigurationFormat(configFile)
	if err == nil {
		t.Error("Expected error for missing definitions section")
	}
	if !strings.Contains(err.Error(), "definitions section is required") {
		t.Errorf("Expected 'definitions section is required' error, got: %v", err)
	}
}

func TestValidateConfigurationFormat_EmptyConfigs(t *testing.T) {
	configFile := createTempConfig(t, `
definitions:
  channels:
    - id: c4
      label: C4-M1
      role: eeg
`)

	_, err := ValidateConfigurationFormat(configFile)
	if err == nil || !strings.Contains(err.Error(), "configs section cannot be empty") {
		t.Errorf("Expected empty configs error, got: %v", err)
	}
}

func TestValidateConfigurationFormat_InvalidChannelDefinition(t *testing.T) {
	tests := []struct {
		name          string
		definition    string
		expectedError string
	}{
		{
			name: "missing id",
			definition: `
    - label: C4-M1
      role: eeg`,
			expectedError: "'id' is required",
		},
		{
			name: "missing label",
			definition: `
    - id: c4
      role: eeg`,
			expectedError: "'label' is required",
		},
		{
			name: "missing role",
			definition: `
    - id: c4
      label: C4-M1`,
			expectedError: "'role' is required",
		},
		{
			name: "unknown role",
			definition: `
    - id: thorax
      label: Thorax
      role: resp`,
			expectedError: "role",
		},
		{
			name: "duplicate id",
			definition: `
    - id: c4
      label: C4-M1
      role: eeg
    - id: c4
      label: C3-M2
      role: eeg`,
			expectedError: "duplicate ID 'c4'",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			content := `
definitions:
  channels:` + test.definition + `
configs:
  test:
    channels: []
`
			configFile := createTempConfig(t, content)

			_, err := ValidateConfigurationFormat(configFile)
			if err == nil {
				t.Errorf("Expected error for %s", test.name)
				return
			}

			if !strings.Contains(err.Error(), test.expectedError) {
				t.Errorf("Expected error containing '%s', got: %v", test.expectedError, err)
			}
		})
	}
}

func TestValidateConfigurationFormat_InvalidChannelReference(t *testing.T) {
	tests := []struct {
		name          string
		reference     string
		expectedError string
	}{
		{
			name:          "missing ref",
			reference:     "      - label: C4-M1",
			expectedError: "'ref' is required",
		},
		{
			name:          "undefined ref",
			reference:     "      - ref: fpz",
			expectedError: "references undefined channel definition 'fpz'",
		},
		{
			name:          "blank label override",
			reference:     "      - ref: c4\n        label: \" \"",
			expectedError: "label override cannot be empty",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			content := `
definitions:
  channels:
    - id: c4
      label: C4-M1
      role: eeg
configs:
  test:
    channels:
` + test.reference + "\n"
			configFile := createTempConfig(t, content)

			_, err := ValidateConfigurationFormat(configFile)
			if err == nil {
				t.Errorf("Expected error for %s", test.name)
				return
			}

			if !strings.Contains(err.Error(), test.expectedError) {
				t.Errorf("Expected error containing '%s', got: %v", test.expectedError, err)
			}
		})
	}
}

func TestConvertProfileToConfig_ValidProfile(t *testing.T) {
	definitions := &DefinitionsConfig{
		Channels: []ChannelDefinition{
			{ID: "c4", Label: "C4-M1", Role: "EEG"},
			{ID: "chin", Label: "Chin1-Chin2", Role: "emg"},
		},
	}

	override := "Chin"
	profile := &ConfigProfile{
		Channels: []ChannelReference{
			{Ref: "c4"},
			{Ref: "chin", Label: &override},
		},
		Epoch:  EpochConfig{Seconds: 20},
		Output: OutputConfig{Format: "json"},
	}

	config, err := convertProfileToConfig(profile, definitions)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(config.Channels) != 2 {
		t.Fatalf("Expected 2 channels, got %d", len(config.Channels))
	}

	c4 := config.Channels[0]
	if c4.Name != "c4" || c4.Label != "C4-M1" || c4.Role != "eeg" {
		t.Errorf("Invalid eeg channel: %+v", c4)
	}

	chin := config.Channels[1]
	if chin.Label != "Chin" || chin.Role != "emg" {
		t.Errorf("Expected label override on emg channel: %+v", chin)
	}

	if config.Epoch.Seconds != 20 || config.Output.Format != "json" {
		t.Errorf("Profile settings not copied: %+v", config)
	}
}

func TestConvertProfileToConfig_MissingReference(t *testing.T) {
	definitions := &DefinitionsConfig{
		Channels: []ChannelDefinition{{ID: "c4", Label: "C4-M1", Role: "eeg"}},
	}
	profile := &ConfigProfile{Channels: []ChannelReference{{Ref: "fpz"}}}

	_, err := convertProfileToConfig(profile, definitions)
	if err == nil {
		t.Error("Expected error for missing reference")
	}
	if !strings.Contains(err.Error(), "reference 'fpz' not found in definitions") {
		t.Errorf("Expected reference not found error, got: %v", err)
	}
}

func TestConvertProfileToConfig_EmptyRef(t *testing.T) {
	profile := &ConfigProfile{Channels: []ChannelReference{{Ref: ""}}}

	_, err := convertProfileToConfig(profile, &DefinitionsConfig{})
	if err == nil || !strings.Contains(err.Error(), "'ref' is required") {
		t.Errorf("Expected ref required error, got: %v", err)
	}
}

// Helper function to create temporary config file for testing
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sleepstage.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}
