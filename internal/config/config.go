package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/AIGelman23/Connectify-sub001/internal/capture"
	"github.com/AIGelman23/Connectify-sub001/internal/media"
	"github.com/AIGelman23/Connectify-sub001/internal/mix"
	"github.com/AIGelman23/Connectify-sub001/internal/platform"
	"github.com/AIGelman23/Connectify-sub001/internal/recorder"
	"github.com/AIGelman23/Connectify-sub001/internal/trim"
	"github.com/AIGelman23/Connectify-sub001/internal/waveform"
)

// DefinitionsConfig is the shared sound catalog profiles pick from.
type DefinitionsConfig struct {
	Sounds []SoundDefinition `mapstructure:"sounds" yaml:"sounds"`
}

type SoundDefinition struct {
	ID     string  `mapstructure:"id" yaml:"id"`
	Name   string  `mapstructure:"name" yaml:"name"`
	Artist string  `mapstructure:"artist" yaml:"artist,omitempty"`
	URL    string  `mapstructure:"url" yaml:"url"`
	Volume float64 `mapstructure:"volume" yaml:"volume,omitempty"`
}

type SoundReference struct {
	Ref    string   `mapstructure:"ref" yaml:"ref"`
	Volume *float64 `mapstructure:"volume,omitempty" yaml:"volume,omitempty"`
}

type GlobalsConfig struct {
	Output GlobalOutputConfig `mapstructure:"output" yaml:"output"`
}

type GlobalOutputConfig struct {
	RecordingsDirectory string `mapstructure:"recordings_directory" yaml:"recordings_directory"`
	SoundsDirectory     string `mapstructure:"sounds_directory" yaml:"sounds_directory"`
}

type RootConfig struct {
	ActiveConfig             string                    `mapstructure:"active_config" yaml:"active_config"`
	Globals                  *GlobalsConfig            `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Platform                 *PlatformConfig           `mapstructure:"platform,omitempty" yaml:"platform,omitempty"`
	Definitions              *DefinitionsConfig        `mapstructure:"definitions,omitempty" yaml:"definitions,omitempty"`
	Configs                  map[string]*ConfigProfile `mapstructure:"configs" yaml:"configs"`
	SupportedAudioExtensions []string                  `mapstructure:"supported_audio_extensions" yaml:"supported_audio_extensions"`
}

// Config is a resolved profile.
type Config struct {
	Platform PlatformConfig `mapstructure:"platform" yaml:"platform"`
	Capture  CaptureConfig  `mapstructure:"capture" yaml:"capture"`
	Mix      MixConfig      `mapstructure:"mix" yaml:"mix"`
	Recorder RecorderConfig `mapstructure:"recorder" yaml:"recorder"`
	Trim     TrimConfig     `mapstructure:"trim" yaml:"trim"`
	Waveform WaveformConfig `mapstructure:"waveform" yaml:"waveform"`
	Sounds   []Sound        `mapstructure:"sounds" yaml:"sounds"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`

	// Internal field to track inheritance information for config show
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

type ConfigProfile struct {
	Platform PlatformConfig   `mapstructure:"platform" yaml:"platform"`
	Capture  CaptureConfig    `mapstructure:"capture" yaml:"capture"`
	Mix      MixConfig        `mapstructure:"mix" yaml:"mix"`
	Recorder RecorderConfig   `mapstructure:"recorder" yaml:"recorder"`
	Trim     TrimConfig       `mapstructure:"trim" yaml:"trim"`
	Waveform WaveformConfig   `mapstructure:"waveform" yaml:"waveform"`
	Sounds   []SoundReference `mapstructure:"sounds" yaml:"sounds"`
	Output   OutputConfig     `mapstructure:"output" yaml:"output"`
}

// InheritanceInfo records, per dotted field name, whether the value came
// from the selected profile or was inherited.
type InheritanceInfo struct {
	Fields map[string]string
}

// Source returns "profile-specific", "inherited" or "" for unknown fields.
func (i *InheritanceInfo) Source(field string) string {
	if i == nil {
		return ""
	}
	return i.Fields[field]
}

type PlatformConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // "virtual", "auto"
}

type CaptureConfig struct {
	Facing           string `mapstructure:"facing" yaml:"facing"` // "user", "environment"
	IdealWidth       int    `mapstructure:"ideal_width" yaml:"ideal_width"`
	IdealHeight      int    `mapstructure:"ideal_height" yaml:"ideal_height"`
	FrameRate        int    `mapstructure:"frame_rate" yaml:"frame_rate"`
	EchoCancellation *bool  `mapstructure:"echo_cancellation" yaml:"echo_cancellation,omitempty"`
	NoiseSuppression *bool  `mapstructure:"noise_suppression" yaml:"noise_suppression,omitempty"`
	AutoGainControl  *bool  `mapstructure:"auto_gain_control" yaml:"auto_gain_control,omitempty"`
}

type MixConfig struct {
	Mode        string   `mapstructure:"mode" yaml:"mode"` // "replace", "blend"
	MusicVolume *float64 `mapstructure:"music_volume" yaml:"music_volume,omitempty"`
	MicVolume   *float64 `mapstructure:"mic_volume" yaml:"mic_volume,omitempty"`
	Monitor     *bool    `mapstructure:"monitor" yaml:"monitor,omitempty"`
}

type RecorderConfig struct {
	MaxDurationMs int      `mapstructure:"max_duration_ms" yaml:"max_duration_ms"`
	TimesliceMs   int      `mapstructure:"timeslice_ms" yaml:"timeslice_ms"`
	MimeTypes     []string `mapstructure:"mime_types" yaml:"mime_types"`
}

type TrimConfig struct {
	FrameRate      int `mapstructure:"frame_rate" yaml:"frame_rate"`
	SafetyMarginMs int `mapstructure:"safety_margin_ms" yaml:"safety_margin_ms"`
	MinSelectionMs int `mapstructure:"min_selection_ms" yaml:"min_selection_ms"`
}

type WaveformConfig struct {
	Buckets int     `mapstructure:"buckets" yaml:"buckets"`
	Gain    float64 `mapstructure:"gain" yaml:"gain"`
}

// Sound is a resolved catalog entry.
type Sound struct {
	ID     string  `mapstructure:"id" yaml:"id" json:"id"`
	Name   string  `mapstructure:"name" yaml:"name" json:"name"`
	Artist string  `mapstructure:"artist" yaml:"artist,omitempty" json:"artist,omitempty"`
	URL    string  `mapstructure:"url" yaml:"url" json:"url"`
	Volume float64 `mapstructure:"volume" yaml:"volume" json:"volume"`
}

type OutputConfig struct {
	Directory       string `mapstructure:"directory" yaml:"directory"`
	SoundsDirectory string `mapstructure:"sounds_directory" yaml:"sounds_directory"`
}

func boolPtr(b bool) *bool        { return &b }
func floatPtr(f float64) *float64 { return &f }

var defaultConfig = Config{
	Platform: PlatformConfig{Backend: "auto"},
	Capture: CaptureConfig{
		Facing:           "user",
		IdealWidth:       3840,
		IdealHeight:      2160,
		FrameRate:        30,
		EchoCancellation: boolPtr(true),
		NoiseSuppression: boolPtr(true),
		AutoGainControl:  boolPtr(true),
	},
	Mix: MixConfig{
		Mode:        "replace",
		MusicVolume: floatPtr(1),
		MicVolume:   floatPtr(1),
		Monitor:     boolPtr(true),
	},
	Recorder: RecorderConfig{
		MaxDurationMs: 60000,
		TimesliceMs:   100,
		MimeTypes:     recorder.DefaultMimeTypes,
	},
	Trim: TrimConfig{
		FrameRate:      30,
		SafetyMarginMs: 500,
		MinSelectionMs: 1000,
	},
	Waveform: WaveformConfig{
		Buckets: waveform.DefaultBuckets,
		Gain:    waveform.DefaultGain,
	},
	Output: OutputConfig{
		Directory:       filepath.Join(os.Getenv("HOME"), "Videos", "ReelCapture"),
		SoundsDirectory: filepath.Join(os.Getenv("HOME"), "Music", "ReelCapture"),
	},
}

var defaultAudioExtensions = []string{"wav", "mp3", "m4a", "aac", "ogg"}

// Default returns the built-in configuration.
func Default() *Config {
	c := mergeConfigs(nil, &defaultConfig)
	c.Output.Directory = expandPath(c.Output.Directory)
	c.Output.SoundsDirectory = expandPath(c.Output.SoundsDirectory)
	return c
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

	// Global platform settings sit under every profile
	if rootConfig.Platform != nil && selectedConfig.Platform.Backend == "" {
		selectedConfig.Platform.Backend = rootConfig.Platform.Backend
	}

	// Merge with default profile if it exists and we're not already using default
	base := &defaultConfig
	if configName != "default" {
		if defaultProfile, exists := rootConfig.Configs["default"]; exists {
			resolvedDefault, err := convertProfileToConfig(defaultProfile, rootConfig.Definitions)
			if err != nil {
				return nil, fmt.Errorf("error resolving default configuration: %w", err)
			}
			base = mergeConfigs(&defaultConfig, resolvedDefault)
		}
	}
	selectedConfig = mergeConfigs(base, selectedConfig)

	// Global directories take precedence over profile directories
	if rootConfig.Globals != nil && rootConfig.Globals.Output.RecordingsDirectory != "" {
		selectedConfig.Output.Directory = rootConfig.Globals.Output.RecordingsDirectory
	}
	if rootConfig.Globals != nil && rootConfig.Globals.Output.SoundsDirectory != "" {
		selectedConfig.Output.SoundsDirectory = rootConfig.Globals.Output.SoundsDirectory
	}

	selectedConfig.Output.Directory = expandPath(selectedConfig.Output.Directory)
	selectedConfig.Output.SoundsDirectory = expandPath(selectedConfig.Output.SoundsDirectory)
	for i := range selectedConfig.Sounds {
		selectedConfig.Sounds[i].URL = expandPath(selectedConfig.Sounds[i].URL)
	}

	if err := validateConfig(selectedConfig); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return selectedConfig, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return err
	}
	if _, ok := rootConfig.Configs[newActiveConfig]; !ok {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
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

// convertProfileToConfig converts a ConfigProfile to Config by resolving sound references
func convertProfileToConfig(profile *ConfigProfile, definitions *DefinitionsConfig) (*Config, error) {
	if profile == nil {
		return nil, fmt.Errorf("profile cannot be nil")
	}

	config := &Config{
		Platform: profile.Platform,
		Capture:  profile.Capture,
		Mix:      profile.Mix,
		Recorder: profile.Recorder,
		Trim:     profile.Trim,
		Waveform: profile.Waveform,
		Output:   profile.Output,
	}

	for i, ref := range profile.Sounds {
		if ref.Ref == "" {
			return nil, fmt.Errorf("sounds[%d]: 'ref' is required", i)
		}

		var definition *SoundDefinition
		if definitions != nil {
			for j := range definitions.Sounds {
				if definitions.Sounds[j].ID == ref.Ref {
					definition = &definitions.Sounds[j]
					break
				}
			}
		}
		if definition == nil {
			return nil, fmt.Errorf("sounds[%d]: reference '%s' not found in definitions", i, ref.Ref)
		}

		sound := Sound{
			ID:     definition.ID,
			Name:   definition.Name,
			Artist: definition.Artist,
			URL:    definition.URL,
			Volume: definition.Volume,
		}
		if sound.Volume == 0 {
			sound.Volume = 1
		}
		if ref.Volume != nil {
			sound.Volume = *ref.Volume
		}
		config.Sounds = append(config.Sounds, sound)
	}

	return config, nil
}

// inheritance tracks where each merged field came from.
type inheritance map[string]string

func (in inheritance) mark(field string, fromProfile bool) {
	if fromProfile {
		in[field] = "profile-specific"
	} else if _, ok := in[field]; !ok {
		in[field] = "inherited"
	}
}

func mergeString(in inheritance, field string, dst *string, v string) {
	if v != "" {
		*dst = v
	}
	in.mark(field, v != "")
}

func mergeInt(in inheritance, field string, dst *int, v int) {
	if v != 0 {
		*dst = v
	}
	in.mark(field, v != 0)
}

func mergeFloat(in inheritance, field string, dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
	in.mark(field, v != 0)
}

func mergePtr[T any](in inheritance, field string, dst **T, v *T) {
	if v != nil {
		c := *v
		*dst = &c
	}
	in.mark(field, v != nil)
}

// mergeConfigs implements the "Selection & Fallback" inheritance model:
// - Sounds: only the sounds explicitly listed in the profile; a profile
//   listing none inherits the base catalog
// - For all other settings, use the profile value or fall back to base
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{}
	if base != nil {
		*result = *base
		result.Recorder.MimeTypes = append([]string(nil), base.Recorder.MimeTypes...)
		result.Sounds = append([]Sound(nil), base.Sounds...)
		result.Capture.EchoCancellation = copyPtr(base.Capture.EchoCancellation)
		result.Capture.NoiseSuppression = copyPtr(base.Capture.NoiseSuppression)
		result.Capture.AutoGainControl = copyPtr(base.Capture.AutoGainControl)
		result.Mix.MusicVolume = copyPtr(base.Mix.MusicVolume)
		result.Mix.MicVolume = copyPtr(base.Mix.MicVolume)
		result.Mix.Monitor = copyPtr(base.Mix.Monitor)
	}
	in := inheritance{}
	result.Inheritance = &InheritanceInfo{Fields: in}
	if profile == nil {
		return result
	}

	mergeString(in, "platform.backend", &result.Platform.Backend, profile.Platform.Backend)

	mergeString(in, "capture.facing", &result.Capture.Facing, profile.Capture.Facing)
	mergeInt(in, "capture.ideal_width", &result.Capture.IdealWidth, profile.Capture.IdealWidth)
	mergeInt(in, "capture.ideal_height", &result.Capture.IdealHeight, profile.Capture.IdealHeight)
	mergeInt(in, "capture.frame_rate", &result.Capture.FrameRate, profile.Capture.FrameRate)
	mergePtr(in, "capture.echo_cancellation", &result.Capture.EchoCancellation, profile.Capture.EchoCancellation)
	mergePtr(in, "capture.noise_suppression", &result.Capture.NoiseSuppression, profile.Capture.NoiseSuppression)
	mergePtr(in, "capture.auto_gain_control", &result.Capture.AutoGainControl, profile.Capture.AutoGainControl)

	mergeString(in, "mix.mode", &result.Mix.Mode, profile.Mix.Mode)
	mergePtr(in, "mix.music_volume", &result.Mix.MusicVolume, profile.Mix.MusicVolume)
	mergePtr(in, "mix.mic_volume", &result.Mix.MicVolume, profile.Mix.MicVolume)
	mergePtr(in, "mix.monitor", &result.Mix.Monitor, profile.Mix.Monitor)

	mergeInt(in, "recorder.max_duration_ms", &result.Recorder.MaxDurationMs, profile.Recorder.MaxDurationMs)
	mergeInt(in, "recorder.timeslice_ms", &result.Recorder.TimesliceMs, profile.Recorder.TimesliceMs)
	if len(profile.Recorder.MimeTypes) > 0 {
		result.Recorder.MimeTypes = append([]string(nil), profile.Recorder.MimeTypes...)
	}
	in.mark("recorder.mime_types", len(profile.Recorder.MimeTypes) > 0)

	mergeInt(in, "trim.frame_rate", &result.Trim.FrameRate, profile.Trim.FrameRate)
	mergeInt(in, "trim.safety_margin_ms", &result.Trim.SafetyMarginMs, profile.Trim.SafetyMarginMs)
	mergeInt(in, "trim.min_selection_ms", &result.Trim.MinSelectionMs, profile.Trim.MinSelectionMs)

	mergeInt(in, "waveform.buckets", &result.Waveform.Buckets, profile.Waveform.Buckets)
	mergeFloat(in, "waveform.gain", &result.Waveform.Gain, profile.Waveform.Gain)

	mergeString(in, "output.directory", &result.Output.Directory, profile.Output.Directory)
	mergeString(in, "output.sounds_directory", &result.Output.SoundsDirectory, profile.Output.SoundsDirectory)

	// SOUNDS: Selection & Fallback Model
	if len(profile.Sounds) > 0 {
		result.Sounds = append([]Sound(nil), profile.Sounds...)
	}
	in.mark("sounds", len(profile.Sounds) > 0)

	return result
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// validateConfig checks a resolved config. Errors name the offending field.
func validateConfig(c *Config) error {
	if _, err := platform.ParseBackend(c.Platform.Backend); err != nil {
		return fmt.Errorf("platform.backend: %w", err)
	}

	if _, ok := media.ParseFacingMode(c.Capture.Facing); !ok {
		return fmt.Errorf("capture.facing must be 'user' or 'environment', got: %s", c.Capture.Facing)
	}
	if c.Capture.IdealWidth <= 0 || c.Capture.IdealHeight <= 0 {
		return fmt.Errorf("capture.ideal_width and capture.ideal_height must be > 0, got: %dx%d", c.Capture.IdealWidth, c.Capture.IdealHeight)
	}
	if c.Capture.FrameRate <= 0 || c.Capture.FrameRate > 240 {
		return fmt.Errorf("capture.frame_rate must be between 1 and 240, got: %d", c.Capture.FrameRate)
	}

	if _, err := mix.ParseMode(c.Mix.Mode); err != nil {
		return fmt.Errorf("mix.mode: %w", err)
	}
	if v := c.Mix.MusicVolume; v != nil && (*v < 0 || *v > 10) {
		return fmt.Errorf("mix.music_volume must be between 0 and 10, got: %.2f", *v)
	}
	if v := c.Mix.MicVolume; v != nil && (*v < 0 || *v > 10) {
		return fmt.Errorf("mix.mic_volume must be between 0 and 10, got: %.2f", *v)
	}

	if c.Recorder.MaxDurationMs <= 0 {
		return fmt.Errorf("recorder.max_duration_ms must be > 0, got: %d", c.Recorder.MaxDurationMs)
	}
	if c.Recorder.TimesliceMs <= 0 {
		return fmt.Errorf("recorder.timeslice_ms must be > 0, got: %d", c.Recorder.TimesliceMs)
	}
	if len(c.Recorder.MimeTypes) == 0 {
		return fmt.Errorf("recorder.mime_types cannot be empty")
	}

	if c.Trim.FrameRate <= 0 || c.Trim.FrameRate > 240 {
		return fmt.Errorf("trim.frame_rate must be between 1 and 240, got: %d", c.Trim.FrameRate)
	}
	if c.Trim.SafetyMarginMs < 0 {
		return fmt.Errorf("trim.safety_margin_ms must be >= 0, got: %d", c.Trim.SafetyMarginMs)
	}
	if c.Trim.MinSelectionMs <= 0 {
		return fmt.Errorf("trim.min_selection_ms must be > 0, got: %d", c.Trim.MinSelectionMs)
	}

	if c.Waveform.Buckets <= 0 || c.Waveform.Buckets > 10000 {
		return fmt.Errorf("waveform.buckets must be between 1 and 10000, got: %d", c.Waveform.Buckets)
	}
	if c.Waveform.Gain <= 0 {
		return fmt.Errorf("waveform.gain must be > 0, got: %.2f", c.Waveform.Gain)
	}

	if c.Output.Directory == "" {
		return fmt.Errorf("output.directory is required")
	}

	for i, s := range c.Sounds {
		if s.Volume < 0 || s.Volume > 10 {
			return fmt.Errorf("sounds[%d] '%s' volume must be between 0 and 10, got: %.2f", i, s.ID, s.Volume)
		}
	}
	return nil
}

// GetSupportedAudioExtensions returns the supported audio extensions from config or defaults
func GetSupportedAudioExtensions(configFile string) []string {
	if configFile == "" {
		return defaultAudioExtensions
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return defaultAudioExtensions
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return defaultAudioExtensions
	}

	if len(rootConfig.SupportedAudioExtensions) == 0 {
		return defaultAudioExtensions
	}

	return rootConfig.SupportedAudioExtensions
}

// IsSupportedAudioFile reports whether path has one of the extensions.
func IsSupportedAudioFile(path string, extensions []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext && ext != "" {
			return true
		}
	}
	return false
}

// ValidateConfigurationFormat validates the configuration file format and returns parsed config
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	v.SetEnvPrefix("REELCAPTURE")
	v.AutomaticEnv()
	v.BindEnv("active_config")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Unmarshal loses profiles written as empty maps; recover them from the raw section.
	if rootConfig.Configs == nil {
		rootConfig.Configs = make(map[string]*ConfigProfile)
	}
	if raw, ok := v.Get("configs").(map[string]any); ok {
		for name := range raw {
			if _, exists := rootConfig.Configs[name]; !exists {
				rootConfig.Configs[name] = nil
			}
		}
	}
	for name, profile := range rootConfig.Configs {
		if profile == nil {
			rootConfig.Configs[name] = &ConfigProfile{}
		}
	}
	if len(rootConfig.Configs) == 0 {
		return nil, fmt.Errorf("configs section is required")
	}

	extensions := rootConfig.SupportedAudioExtensions
	if len(extensions) == 0 {
		extensions = defaultAudioExtensions
	}
	if err := validateDefinitions(rootConfig.Definitions, extensions); err != nil {
		return nil, fmt.Errorf("invalid definitions: %w", err)
	}

	for configName, configProfile := range rootConfig.Configs {
		if configProfile == nil {
			continue
		}
		if err := validateSoundReferences(configProfile.Sounds, rootConfig.Definitions); err != nil {
			return nil, fmt.Errorf("invalid config '%s': %w", configName, err)
		}
	}

	return &rootConfig, nil
}

// validateDefinitions validates the definitions section. It is optional.
func validateDefinitions(definitions *DefinitionsConfig, extensions []string) error {
	if definitions == nil {
		return nil
	}

	seenIDs := make(map[string]bool)
	for i, def := range definitions.Sounds {
		prefix := fmt.Sprintf("definitions.sounds[%d]", i)
		if def.ID == "" {
			return fmt.Errorf("%s: 'id' is required", prefix)
		}
		if seenIDs[def.ID] {
			return fmt.Errorf("%s: duplicate ID '%s'", prefix, def.ID)
		}
		seenIDs[def.ID] = true

		if def.Name == "" {
			return fmt.Errorf("%s: 'name' is required", prefix)
		}
		if def.URL == "" {
			return fmt.Errorf("%s: 'url' is required", prefix)
		}
		if !IsSupportedAudioFile(urlPath(def.URL), extensions) {
			return fmt.Errorf("%s: 'url' must end in one of %v, got: %s", prefix, extensions, def.URL)
		}
		if def.Volume < 0 {
			return fmt.Errorf("%s: 'volume' must be >= 0, got: %.2f", prefix, def.Volume)
		}
	}

	return nil
}

// urlPath strips a query string and fragment so the extension can be read.
func urlPath(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

// validateSoundReferences validates sound references in a config profile
func validateSoundReferences(sounds []SoundReference, definitions *DefinitionsConfig) error {
	for i, ref := range sounds {
		prefix := fmt.Sprintf("sounds[%d]", i)

		if ref.Ref == "" {
			return fmt.Errorf("%s: 'ref' is required", prefix)
		}

		found := false
		if definitions != nil {
			for _, def := range definitions.Sounds {
				if def.ID == ref.Ref {
					found = true
					break
				}
			}
		}
		if !found {
			return fmt.Errorf("%s: references undefined sound definition '%s'", prefix, ref.Ref)
		}

		if ref.Volume != nil && *ref.Volume < 0 {
			return fmt.Errorf("%s: volume override must be >= 0, got %.2f", prefix, *ref.Volume)
		}
	}

	return nil
}

// FacingMode returns the configured initial camera.
func (c *Config) FacingMode() media.FacingMode {
	f, _ := media.ParseFacingMode(c.Capture.Facing)
	return f
}

// CaptureOptions converts the capture section.
func (c *Config) CaptureOptions() capture.Options {
	return capture.Options{
		IdealWidth:       c.Capture.IdealWidth,
		IdealHeight:      c.Capture.IdealHeight,
		FrameRate:        c.Capture.FrameRate,
		EchoCancellation: deref(c.Capture.EchoCancellation, true),
		NoiseSuppression: deref(c.Capture.NoiseSuppression, true),
		AutoGainControl:  deref(c.Capture.AutoGainControl, true),
	}
}

// MixOptions converts the mix section.
func (c *Config) MixOptions() mix.Options {
	mode, _ := mix.ParseMode(c.Mix.Mode)
	return mix.Options{
		Mode:        mode,
		MusicVolume: deref(c.Mix.MusicVolume, 1),
		MicVolume:   deref(c.Mix.MicVolume, 1),
		Monitor:     deref(c.Mix.Monitor, true),
	}
}

// RecorderOptions converts the recorder section.
func (c *Config) RecorderOptions() recorder.Options {
	opts := recorder.DefaultOptions()
	opts.MaxDuration = time.Duration(c.Recorder.MaxDurationMs) * time.Millisecond
	opts.Timeslice = time.Duration(c.Recorder.TimesliceMs) * time.Millisecond
	if len(c.Recorder.MimeTypes) > 0 {
		opts.MimeTypes = c.Recorder.MimeTypes
	}
	return opts
}

// TrimOptions converts the trim section.
func (c *Config) TrimOptions() trim.Options {
	opts := trim.DefaultOptions()
	opts.FrameRate = c.Trim.FrameRate
	opts.SafetyMargin = time.Duration(c.Trim.SafetyMarginMs) * time.Millisecond
	opts.Timeslice = time.Duration(c.Recorder.TimesliceMs) * time.Millisecond
	opts.MimeTypes = c.RecorderOptions().MimeTypes
	return opts
}

// MinSelection returns the shortest trim selection.
func (c *Config) MinSelection() time.Duration {
	return time.Duration(c.Trim.MinSelectionMs) * time.Millisecond
}

// WaveformOptions converts the waveform section.
func (c *Config) WaveformOptions() waveform.Options {
	return waveform.Options{Gain: c.Waveform.Gain}
}

// FindSound returns the catalog entry with the given ID.
func (c *Config) FindSound(id string) (Sound, bool) {
	for _, s := range c.Sounds {
		if s.ID == id {
			return s, true
		}
	}
	return Sound{}, false
}

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
