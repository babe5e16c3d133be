package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/audiolibrelab/sleepstage/internal/export"
	"github.com/audiolibrelab/sleepstage/internal/recording"
)

type DefinitionsConfig struct {
	Channels []ChannelDefinition `mapstructure:"channels" yaml:"channels"`
}

// ChannelDefinition names a recording channel once so that profiles can
// refer to it by ID.
type ChannelDefinition struct {
	ID    string `mapstructure:"id" yaml:"id"`
	Label string `mapstructure:"label" yaml:"label"`
	Role  string `mapstructure:"role" yaml:"role"`
}

type ChannelReference struct {
	Ref   string  `mapstructure:"ref" yaml:"ref"`
	Label *string `mapstructure:"label,omitempty" yaml:"label,omitempty"` // per-profile montage override
}

type GlobalsConfig struct {
	OutputDirectory string `mapstructure:"output_directory" yaml:"output_directory"`
	ModelsDirectory string `mapstructure:"models_directory" yaml:"models_directory"`
	StorePath       string `mapstructure:"store_path" yaml:"store_path"`
}

type RootConfig struct {
	ActiveConfig string                    `mapstructure:"active_config" yaml:"active_config"`
	Globals      *GlobalsConfig            `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Definitions  *DefinitionsConfig        `mapstructure:"definitions,omitempty" yaml:"definitions,omitempty"`
	Configs      map[string]*ConfigProfile `mapstructure:"configs" yaml:"configs"`
}

type Config struct {
	Channels  []Channel       `mapstructure:"channels" yaml:"channels"`
	Epoch     EpochConfig     `mapstructure:"epoch" yaml:"epoch"`
	Smoothing SmoothingConfig `mapstructure:"smoothing" yaml:"smoothing"`
	Metadata  MetadataConfig  `mapstructure:"metadata" yaml:"metadata"`
	Model     ModelConfig     `mapstructure:"model" yaml:"model"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`

	// Name of the profile this configuration was resolved from
	Profile string `mapstructure:"-" yaml:"-"`

	// Internal field to track inheritance information for info command
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

type ConfigProfile struct {
	Channels  []ChannelReference `mapstructure:"channels" yaml:"channels"`
	Epoch     EpochConfig        `mapstructure:"epoch" yaml:"epoch"`
	Smoothing SmoothingConfig    `mapstructure:"smoothing" yaml:"smoothing"`
	Metadata  MetadataConfig     `mapstructure:"metadata" yaml:"metadata"`
	Model     ModelConfig        `mapstructure:"model" yaml:"model"`
	Output    OutputConfig       `mapstructure:"output" yaml:"output"`
}

type InheritanceInfo struct {
	Channels  string // "inherited" or "profile-specific"
	Epoch     string
	Smoothing string
	Metadata  string
	Model     string
	Output    struct {
		Directory string
		Format    string
	}
}

type Channel struct {
	Name  string `mapstructure:"name" yaml:"name"`
	Label string `mapstructure:"label" yaml:"label"`
	Role  string `mapstructure:"role" yaml:"role"`
}

type EpochConfig struct {
	Seconds float64 `mapstructure:"seconds" yaml:"seconds"`
}

type SmoothingConfig struct {
	CenteredMinutes float64 `mapstructure:"centered_minutes" yaml:"centered_minutes"`
	PastMinutes     float64 `mapstructure:"past_minutes" yaml:"past_minutes"`
}

type MetadataConfig struct {
	Age  *float64 `mapstructure:"age,omitempty" yaml:"age,omitempty"`
	Male any      `mapstructure:"male,omitempty" yaml:"male,omitempty"` // bool, 0/1 or "male"/"female"
}

type ModelConfig struct {
	Path      string `mapstructure:"path" yaml:"path"` // "auto" or a model file
	Directory string `mapstructure:"directory" yaml:"directory"`
	Version   string `mapstructure:"version" yaml:"version"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
	Format    string `mapstructure:"format" yaml:"format"`
}

type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

func dataDir() string {
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "sleepstage")
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	return &Config{
		Epoch:     EpochConfig{Seconds: 30},
		Smoothing: SmoothingConfig{CenteredMinutes: 5, PastMinutes: 5},
		Model: ModelConfig{
			Path:      "auto",
			Directory: filepath.Join(dataDir(), "models"),
			Version:   "0.1.0",
		},
		Output: OutputConfig{
			Directory: filepath.Join(os.Getenv("HOME"), "SleepStage"),
			Format:    "csv",
		},
		Store: StoreConfig{Path: filepath.Join(dataDir(), "runs.db")},
	}
}

func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	// Validate configuration format first
	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Determine which config to use
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selectedProfile, exists := rootConfig.Configs[configName]
	if !exists {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	selectedConfig, err := convertProfileToConfig(selectedProfile, rootConfig.Definitions)
	if err != nil {
		return nil, fmt.Errorf("error resolving configuration profile '%s': %w", configName, err)
	}

	// Merge with default profile if it exists and we're not already using default
	base := Default()
	if configName != "default" {
		if defaultProfile, exists := rootConfig.Configs["default"]; exists {
			defaultConfig, err := convertProfileToConfig(defaultProfile, rootConfig.Definitions)
			if err != nil {
				return nil, fmt.Errorf("error resolving default configuration: %w", err)
			}
			base = mergeConfigs(base, defaultConfig)
		}
	}
	selectedConfig = mergeConfigs(base, selectedConfig)

	// Globals take precedence over any profile value
	if g := rootConfig.Globals; g != nil {
		if g.OutputDirectory != "" {
			selectedConfig.Output.Directory = g.OutputDirectory
		}
		if g.ModelsDirectory != "" {
			selectedConfig.Model.Directory = g.ModelsDirectory
		}
		if g.StorePath != "" {
			selectedConfig.Store.Path = g.StorePath
		}
	}

	selectedConfig.Output.Directory = expandPath(selectedConfig.Output.Directory)
	selectedConfig.Model.Directory = expandPath(selectedConfig.Model.Directory)
	selectedConfig.Store.Path = expandPath(selectedConfig.Store.Path)
	if selectedConfig.Model.Path != "auto" {
		selectedConfig.Model.Path = expandPath(selectedConfig.Model.Path)
	}

	if err := validateConfig(selectedConfig); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	selectedConfig.Profile = configName
	return selectedConfig, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// convertProfileToConfig converts a ConfigProfile to Config by resolving channel references
func convertProfileToConfig(profile *ConfigProfile, definitions *DefinitionsConfig) (*Config, error) {
	if profile == nil {
		return nil, fmt.Errorf("profile cannot be nil")
	}

	config := &Config{
		Epoch:     profile.Epoch,
		Smoothing: profile.Smoothing,
		Metadata:  profile.Metadata,
		Model:     profile.Model,
		Output:    profile.Output,
	}

	for i, chRef := range profile.Channels {
		if chRef.Ref == "" {
			return nil, fmt.Errorf("channel[%d]: 'ref' is required", i)
		}

		var definition *ChannelDefinition
		if definitions != nil {
			for _, def := range definitions.Channels {
				if def.ID == chRef.Ref {
					definition = &def
					break
				}
			}
		}

		if definition == nil {
			return nil, fmt.Errorf("channel[%d]: reference '%s' not found in definitions", i, chRef.Ref)
		}

		channel := Channel{
			Name:  definition.ID,
			Label: definition.Label,
			Role:  strings.ToLower(definition.Role),
		}
		if chRef.Label != nil {
			channel.Label = *chRef.Label
		}

		config.Channels = append(config.Channels, channel)
	}

	return config, nil
}

// mergeConfigs layers profile over base: every zero-valued setting of the
// profile falls back to base. Channels are taken as a whole from the
// profile when it lists any.
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{Inheritance: &InheritanceInfo{}}
	inh := result.Inheritance

	if base != nil {
		result.Channels = append([]Channel(nil), base.Channels...)
		result.Epoch = base.Epoch
		result.Smoothing = base.Smoothing
		result.Metadata = base.Metadata
		result.Model = base.Model
		result.Output = base.Output
		result.Store = base.Store

		inh.Channels = "inherited"
		inh.Epoch = "inherited"
		inh.Smoothing = "inherited"
		inh.Metadata = "inherited"
		inh.Model = "inherited"
		inh.Output.Directory = "inherited"
		inh.Output.Format = "inherited"
	}

	if profile == nil {
		return result
	}

	if len(profile.Channels) > 0 {
		result.Channels = append([]Channel(nil), profile.Channels...)
		inh.Channels = "profile-specific"
	}
	if profile.Epoch.Seconds != 0 {
		result.Epoch.Seconds = profile.Epoch.Seconds
		inh.Epoch = "profile-specific"
	}
	if profile.Smoothing.CenteredMinutes != 0 {
		result.Smoothing.CenteredMinutes = profile.Smoothing.CenteredMinutes
		inh.Smoothing = "profile-specific"
	}
	if profile.Smoothing.PastMinutes != 0 {
		result.Smoothing.PastMinutes = profile.Smoothing.PastMinutes
		inh.Smoothing = "profile-specific"
	}
	if profile.Metadata.Age != nil {
		result.Metadata.Age = profile.Metadata.Age
		inh.Metadata = "profile-specific"
	}
	if profile.Metadata.Male != nil {
		result.Metadata.Male = profile.Metadata.Male
		inh.Metadata = "profile-specific"
	}
	if profile.Model.Path != "" {
		result.Model.Path = profile.Model.Path
		inh.Model = "profile-specific"
	}
	if profile.Model.Directory != "" {
		result.Model.Directory = profile.Model.Directory
		inh.Model = "profile-specific"
	}
	if profile.Model.Version != "" {
		result.Model.Version = profile.Model.Version
		inh.Model = "profile-specific"
	}
	if profile.Output.Directory != "" {
		result.Output.Directory = profile.Output.Directory
		inh.Output.Directory = "profile-specific"
	}
	if profile.Output.Format != "" {
		result.Output.Format = profile.Output.Format
		inh.Output.Format = "profile-specific"
	}
	if profile.Store.Path != "" {
		result.Store.Path = profile.Store.Path
	}

	return result
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// validateConfig checks a resolved configuration
func validateConfig(config *Config) error {
	if err := validateChannels(config.Channels); err != nil {
		return err
	}

	if config.Epoch.Seconds < 5 || config.Epoch.Seconds > 30 {
		return fmt.Errorf("epoch.seconds must be between 5 and 30, got: %g", config.Epoch.Seconds)
	}
	if config.Smoothing.CenteredMinutes <= 0 {
		return fmt.Errorf("smoothing.centered_minutes must be > 0, got: %g", config.Smoothing.CenteredMinutes)
	}
	if config.Smoothing.PastMinutes <= 0 {
		return fmt.Errorf("smoothing.past_minutes must be > 0, got: %g", config.Smoothing.PastMinutes)
	}

	if _, err := config.SubjectMetadata(); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}

	if _, ok := export.Lookup(config.Output.Format); !ok {
		return fmt.Errorf("output.format must be one of %s, got: %s", strings.Join(export.Formats(), ", "), config.Output.Format)
	}

	return nil
}

// validateChannels ensures each role appears once and an EEG channel is present
func validateChannels(channels []Channel) error {
	if len(channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	seenRoles := make(map[string]string)
	for i, channel := range channels {
		if channel.Label == "" {
			return fmt.Errorf("channel[%d] '%s' must have a label", i, channel.Name)
		}
		if _, err := recording.ParseRole(channel.Role); err != nil {
			return fmt.Errorf("channel[%d] '%s': %w", i, channel.Name, err)
		}
		if prev, dup := seenRoles[channel.Role]; dup {
			return fmt.Errorf("channel[%d] '%s': role '%s' already used by '%s'", i, channel.Name, channel.Role, prev)
		}
		seenRoles[channel.Role] = channel.Name
	}
	if _, ok := seenRoles[string(recording.RoleEEG)]; !ok {
		return fmt.Errorf("an 'eeg' channel is required")
	}
	return nil
}

// SubjectMetadata converts the metadata section, validating its values.
// It returns nil when the section is empty.
func (c *Config) SubjectMetadata() (*recording.Metadata, error) {
	if c.Metadata.Age == nil && c.Metadata.Male == nil {
		return nil, nil
	}
	return recording.NewMetadata(c.Metadata.Age, c.Metadata.Male)
}

// ValidateConfigurationFormat validates the configuration file format and returns parsed config
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	// Set environment variable prefix
	v.SetEnvPrefix("SLEEPSTAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if rootConfig.Globals == nil {
		rootConfig.Globals = &GlobalsConfig{}
	}
	// Environment overrides for the global paths
	if s := v.GetString("globals.output_directory"); s != "" {
		rootConfig.Globals.OutputDirectory = s
	}
	if s := v.GetString("globals.models_directory"); s != "" {
		rootConfig.Globals.ModelsDirectory = s
	}
	if s := v.GetString("globals.store_path"); s != "" {
		rootConfig.Globals.StorePath = s
	}

	if err := validateDefinitions(rootConfig.Definitions); err != nil {
		return nil, fmt.Errorf("invalid definitions: %w", err)
	}

	if len(rootConfig.Configs) == 0 {
		return nil, fmt.Errorf("configs section cannot be empty")
	}
	for configName, configProfile := range rootConfig.Configs {
		if configProfile == nil {
			return nil, fmt.Errorf("invalid config '%s': profile is empty", configName)
		}
		if err := validateChannelReferences(configProfile.Channels, rootConfig.Definitions); err != nil {
			return nil, fmt.Errorf("invalid config '%s': %w", configName, err)
		}
	}

	return &rootConfig, nil
}

// validateDefinitions validates the definitions section
func validateDefinitions(definitions *DefinitionsConfig) error {
	if definitions == nil {
		return fmt.Errorf("definitions section is required")
	}

	if len(definitions.Channels) == 0 {
		return fmt.Errorf("definitions.channels cannot be empty")
	}

	seenIDs := make(map[string]bool)

	for i, def := range definitions.Channels {
		prefix := fmt.Sprintf("definitions.channels[%d]", i)
		if def.ID == "" {
			return fmt.Errorf("%s: 'id' is required", prefix)
		}
		if seenIDs[def.ID] {
			return fmt.Errorf("%s: duplicate ID '%s'", prefix, def.ID)
		}
		seenIDs[def.ID] = true

		if def.Label == "" {
			return fmt.Errorf("%s: 'label' is required", prefix)
		}
		if def.Role == "" {
			return fmt.Errorf("%s: 'role' is required", prefix)
		}
		if _, err := recording.ParseRole(def.Role); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
	}

	return nil
}

// validateChannelReferences validates channel references in a config profile
func validateChannelReferences(channels []ChannelReference, definitions *DefinitionsConfig) error {
	for i, chRef := range channels {
		prefix := fmt.Sprintf("channels[%d]", i)

		if chRef.Ref == "" {
			return fmt.Errorf("%s: 'ref' is required", prefix)
		}

		found := false
		if definitions != nil {
			for _, def := range definitions.Channels {
				if def.ID == chRef.Ref {
					found = true
					break
				}
			}
		}

		if !found {
			return fmt.Errorf("%s: references undefined channel definition '%s'", prefix, chRef.Ref)
		}

		if chRef.Label != nil && strings.TrimSpace(*chRef.Label) == "" {
			return fmt.Errorf("%s: label override cannot be empty", prefix)
		}
	}

	return nil
}
