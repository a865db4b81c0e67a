package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AIGelman23/Connectify-sub001/internal/media"
	"github.com/AIGelman23/Connectify-sub001/internal/mix"
)

func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reelcapture.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

const profilesConfig = `
active_config: studio

globals:
  output:
    recordings_directory: /tmp/reels

definitions:
  sounds:
    - id: summer
      name: Summer Vibes
      artist: The Band
      url: /music/summer.wav
    - id: night
      name: Night Drive
      url: https://cdn.example.com/night.mp3?token=1
      volume: 0.6

configs:
  default:
    capture:
      facing: user
      frame_rate: 24
    mix:
      mode: replace
      music_volume: 0.8
    sounds:
      - ref: summer
      - ref: night
  studio:
    capture:
      facing: environment
      ideal_width: 1920
      ideal_height: 1080
    mix:
      mode: blend
      monitor: false
      mic_volume: 0
    recorder:
      max_duration_ms: 30000
  outdoor:
    sounds:
      - ref: night
        volume: 1.5
`

func TestMergeConfigs_SelectionAndFallback(t *testing.T) {
	base := &Config{
		Capture: CaptureConfig{Facing: "user", IdealWidth: 3840, IdealHeight: 2160, FrameRate: 30},
		Mix:     MixConfig{Mode: "replace", MusicVolume: floatPtr(1), Monitor: boolPtr(true)},
		Sounds: []Sound{
			{ID: "a", Name: "A", URL: "/a.wav", Volume: 1},
			{ID: "b", Name: "B", URL: "/b.wav", Volume: 1},
		},
		Output: OutputConfig{Directory: "~/Videos/Default"},
	}
	profile := &Config{
		Capture: CaptureConfig{Facing: "environment"},
		Mix:     MixConfig{Monitor: boolPtr(false), MusicVolume: floatPtr(0)},
		Sounds:  []Sound{{ID: "b", Name: "B", URL: "/b.wav", Volume: 0.5}},
	}

	result := mergeConfigs(base, profile)

	if result.Capture.Facing != "environment" {
		t.Errorf("Expected facing 'environment', got %s", result.Capture.Facing)
	}
	if result.Capture.IdealWidth != 3840 || result.Capture.FrameRate != 30 {
		t.Errorf("Expected inherited 3840 @ 30, got %d @ %d", result.Capture.IdealWidth, result.Capture.FrameRate)
	}
	if result.Mix.Mode != "replace" {
		t.Errorf("Expected inherited mode 'replace', got %s", result.Mix.Mode)
	}
	// An explicit zero volume and false monitor are profile values, not unset.
	if *result.Mix.MusicVolume != 0 {
		t.Errorf("Expected music volume 0, got %.2f", *result.Mix.MusicVolume)
	}
	if *result.Mix.Monitor {
		t.Error("Expected monitor disabled")
	}
	if *base.Mix.MusicVolume != 1 || !*base.Mix.Monitor {
		t.Error("Merge must not modify the base config")
	}

	// Only the sounds listed in the profile are selected
	if len(result.Sounds) != 1 || result.Sounds[0].ID != "b" || result.Sounds[0].Volume != 0.5 {
		t.Errorf("Expected only sound 'b' at 0.5, got %+v", result.Sounds)
	}
	if result.Output.Directory != "~/Videos/Default" {
		t.Errorf("Expected inherited directory, got %s", result.Output.Directory)
	}

	if result.Inheritance == nil {
		t.Fatal("Inheritance tracking not initialized")
	}
	tests := map[string]string{
		"capture.facing":      "profile-specific",
		"capture.ideal_width": "inherited",
		"mix.mode":            "inherited",
		"mix.music_volume":    "profile-specific",
		"mix.monitor":         "profile-specific",
		"sounds":              "profile-specific",
		"output.directory":    "inherited",
	}
	for field, want := range tests {
		if got := result.Inheritance.Source(field); got != want {
			t.Errorf("Expected %s to be %s, got %q", field, want, got)
		}
	}
}

func TestMergeConfigs_ProfileWithoutSoundsInheritsCatalog(t *testing.T) {
	base := &Config{Sounds: []Sound{{ID: "a"}, {ID: "b"}}}
	result := mergeConfigs(base, &Config{})
	if len(result.Sounds) != 2 {
		t.Errorf("Expected the base catalog, got %+v", result.Sounds)
	}
	if result.Inheritance.Source("sounds") != "inherited" {
		t.Errorf("Expected sounds inherited, got %q", result.Inheritance.Source("sounds"))
	}
}

func TestLoadWithProfile_ActiveConfig(t *testing.T) {
	cfg, err := LoadWithProfile(createTempConfig(t, profilesConfig), "")
	if err != nil {
		t.Fatalf("LoadWithProfile failed: %v", err)
	}

	if cfg.FacingMode() != media.FacingBack {
		t.Errorf("Expected back camera, got %s", cfg.FacingMode())
	}
	// Inherited from the default profile, which overrides built-ins
	if cfg.Capture.FrameRate != 24 {
		t.Errorf("Expected frame rate 24 from default profile, got %d", cfg.Capture.FrameRate)
	}
	// Inherited from built-ins
	if cfg.Trim.SafetyMarginMs != 500 || cfg.Waveform.Gain != 4.0 {
		t.Errorf("Expected built-in trim and waveform defaults, got %+v %+v", cfg.Trim, cfg.Waveform)
	}
	if cfg.Output.Directory != "/tmp/reels" {
		t.Errorf("Expected global recordings directory, got %s", cfg.Output.Directory)
	}

	mo := cfg.MixOptions()
	if mo.Mode != mix.ModeBlend || mo.Monitor || mo.MicVolume != 0 || mo.MusicVolume != 0.8 {
		t.Errorf("Unexpected mix options: %+v", mo)
	}
	ro := cfg.RecorderOptions()
	if ro.MaxDuration != 30*time.Second || ro.Timeslice != 100*time.Millisecond {
		t.Errorf("Unexpected recorder options: %+v", ro)
	}
	co := cfg.CaptureOptions()
	if co.IdealWidth != 1920 || co.IdealHeight != 1080 || !co.EchoCancellation {
		t.Errorf("Unexpected capture options: %+v", co)
	}

	if len(cfg.Sounds) != 2 {
		t.Fatalf("Expected 2 inherited sounds, got %d", len(cfg.Sounds))
	}
	if s, ok := cfg.FindSound("summer"); !ok || s.Volume != 1 || s.Artist != "The Band" {
		t.Errorf("Expected summer at default volume 1, got %+v", s)
	}
	if s, ok := cfg.FindSound("night"); !ok || s.Volume != 0.6 {
		t.Errorf("Expected night at 0.6, got %+v", s)
	}
}

func TestLoadWithProfile_ProfileFlagOverridesActive(t *testing.T) {
	cfg, err := LoadWithProfile(createTempConfig(t, profilesConfig), "outdoor")
	if err != nil {
		t.Fatalf("LoadWithProfile failed: %v", err)
	}
	if cfg.FacingMode() != media.FacingFront {
		t.Errorf("Expected front camera from default profile, got %s", cfg.FacingMode())
	}
	if len(cfg.Sounds) != 1 || cfg.Sounds[0].ID != "night" || cfg.Sounds[0].Volume != 1.5 {
		t.Errorf("Expected only night at 1.5, got %+v", cfg.Sounds)
	}
	if cfg.Mix.Mode != "replace" {
		t.Errorf("Expected replace mode, got %s", cfg.Mix.Mode)
	}
}

func TestLoadWithProfile_EnvOverridesActiveConfig(t *testing.T) {
	t.Setenv("REELCAPTURE_ACTIVE_CONFIG", "outdoor")
	cfg, err := LoadWithProfile(createTempConfig(t, profilesConfig), "")
	if err != nil {
		t.Fatalf("LoadWithProfile failed: %v", err)
	}
	if len(cfg.Sounds) != 1 {
		t.Errorf("Expected the outdoor profile selected from the environment, got %+v", cfg.Sounds)
	}
}

func TestLoadWithProfile_Errors(t *testing.T) {
	if _, err := LoadWithProfile("", ""); err == nil {
		t.Error("Expected error without a config file")
	}
	if _, err := LoadWithProfile(createTempConfig(t, profilesConfig), "missing"); err == nil || !strings.Contains(err.Error(), "'missing' not found") {
		t.Errorf("Expected missing profile error, got %v", err)
	}
	if _, err := LoadWithProfile(filepath.Join(t.TempDir(), "nope.yaml"), ""); err == nil {
		t.Error("Expected error for a missing file")
	}
}

func TestLoadWithProfile_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg, err := LoadWithProfile(createTempConfig(t, `
configs:
  default:
    output:
      directory: ~/reels
      sounds_directory: ~/sounds
`), "")
	if err != nil {
		t.Fatalf("LoadWithProfile failed: %v", err)
	}
	if cfg.Output.Directory != filepath.Join(home, "reels") {
		t.Errorf("Expected %s, got %s", filepath.Join(home, "reels"), cfg.Output.Directory)
	}
	if cfg.Output.SoundsDirectory != filepath.Join(home, "sounds") {
		t.Errorf("Expected %s, got %s", filepath.Join(home, "sounds"), cfg.Output.SoundsDirectory)
	}
}

func TestUpdateActiveConfig(t *testing.T) {
	path := createTempConfig(t, profilesConfig)

	if err := UpdateActiveConfig(path, "outdoor"); err != nil {
		t.Fatalf("UpdateActiveConfig failed: %v", err)
	}
	root, err := ValidateConfigurationFormat(path)
	if err != nil {
		t.Fatalf("Rewritten config is invalid: %v", err)
	}
	if root.ActiveConfig != "outdoor" {
		t.Errorf("Expected active_config 'outdoor', got %s", root.ActiveConfig)
	}

	if err := UpdateActiveConfig(path, "missing"); err == nil {
		t.Error("Expected error for unknown profile")
	}
}

func TestGetSupportedAudioExtensions(t *testing.T) {
	if got := GetSupportedAudioExtensions(""); len(got) != len(defaultAudioExtensions) {
		t.Errorf("Expected defaults, got %v", got)
	}
	path := createTempConfig(t, `
supported_audio_extensions: [wav, flac]
configs:
  default: {}
`)
	got := GetSupportedAudioExtensions(path)
	if len(got) != 2 || got[0] != "wav" || got[1] != "flac" {
		t.Errorf("Expected [wav flac], got %v", got)
	}
}

func TestIsSupportedAudioFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"song.wav", true},
		{"Song.WAV", true},
		{"/music/a.mp3", true},
		{"clip.webm", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := IsSupportedAudioFile(tt.path, []string{"wav", ".mp3"}); got != tt.want {
			t.Errorf("IsSupportedAudioFile(%q) = %v, expected %v", tt.path, got, tt.want)
		}
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("Expected built-in defaults to validate, got: %v", err)
	}
	if cfg.FacingMode() != media.FacingFront {
		t.Errorf("Expected front camera, got %s", cfg.FacingMode())
	}
	if cfg.RecorderOptions().MaxDuration != time.Minute {
		t.Errorf("Expected 60s limit, got %v", cfg.RecorderOptions().MaxDuration)
	}
	if cfg.MinSelection() != time.Second {
		t.Errorf("Expected 1s minimum selection, got %v", cfg.MinSelection())
	}
	if cfg.TrimOptions().SafetyMargin != 500*time.Millisecond {
		t.Errorf("Expected 500ms safety margin, got %v", cfg.TrimOptions().SafetyMargin)
	}
}
