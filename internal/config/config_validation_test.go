package config

import (
	"strings"
	"testing"
)

func TestValidateConfigurationFormat_ValidConfig(t *testing.T) {
	rootConfig, err := ValidateConfigurationFormat(createTempConfig(t, profilesConfig))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if rootConfig.Definitions == nil || len(rootConfig.Definitions.Sounds) != 2 {
		t.Fatalf("Expected 2 sound definitions, got %+v", rootConfig.Definitions)
	}
	def := rootConfig.Definitions.Sounds[0]
	if def.ID != "summer" || def.Name != "Summer Vibes" || def.URL != "/music/summer.wav" {
		t.Errorf("Invalid first definition: %+v", def)
	}

	outdoor := rootConfig.Configs["outdoor"]
	if outdoor == nil {
		t.Fatal("Expected outdoor config")
	}
	if len(outdoor.Sounds) != 1 || outdoor.Sounds[0].Ref != "night" {
		t.Errorf("Expected one reference to night, got %+v", outdoor.Sounds)
	}
	if outdoor.Sounds[0].Volume == nil || *outdoor.Sounds[0].Volume != 1.5 {
		t.Errorf("Expected volume override 1.5, got %v", outdoor.Sounds[0].Volume)
	}
}

func TestValidateConfigurationFormat_EmptyProfile(t *testing.T) {
	path := createTempConfig(t, "configs:\n  default: {}\n  night: {}\n")

	rootConfig, err := ValidateConfigurationFormat(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(rootConfig.Configs) != 2 {
		t.Fatalf("Expected 2 profiles, got %d", len(rootConfig.Configs))
	}
	if rootConfig.Configs["default"] == nil || rootConfig.Configs["night"] == nil {
		t.Errorf("Expected empty profiles to be present, got %+v", rootConfig.Configs)
	}

	cfg, err := LoadWithProfile(path, "night")
	if err != nil {
		t.Fatalf("Expected empty profile to load, got: %v", err)
	}
	if cfg.Capture.Facing != Default().Capture.Facing {
		t.Errorf("Expected default facing %q, got %q", Default().Capture.Facing, cfg.Capture.Facing)
	}
}

func TestValidateConfigurationFormat_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no configs",
			content: "active_config: default\n",
			wantErr: "configs section is required",
		},
		{
			name: "missing id",
			content: `
definitions:
  sounds:
    - name: A
      url: a.wav
configs:
  default: {}
`,
			wantErr: "definitions.sounds[0]: 'id' is required",
		},
		{
			name: "duplicate id",
			content: `
definitions:
  sounds:
    - {id: a, name: A, url: a.wav}
    - {id: a, name: B, url: b.wav}
configs:
  default: {}
`,
			wantErr: "duplicate ID 'a'",
		},
		{
			name: "missing url",
			content: `
definitions:
  sounds:
    - {id: a, name: A}
configs:
  default: {}
`,
			wantErr: "'url' is required",
		},
		{
			name: "unsupported extension",
			content: `
definitions:
  sounds:
    - {id: a, name: A, url: a.webm}
configs:
  default: {}
`,
			wantErr: "'url' must end in one of",
		},
		{
			name: "negative volume",
			content: `
definitions:
  sounds:
    - {id: a, name: A, url: a.wav, volume: -1}
configs:
  default: {}
`,
			wantErr: "'volume' must be >= 0",
		},
		{
			name: "undefined reference",
			content: `
configs:
  default:
    sounds:
      - ref: ghost
`,
			wantErr: "references undefined sound definition 'ghost'",
		},
		{
			name: "empty reference",
			content: `
definitions:
  sounds:
    - {id: a, name: A, url: a.wav}
configs:
  default:
    sounds:
      - volume: 1
`,
			wantErr: "sounds[0]: 'ref' is required",
		},
		{
			name: "negative override",
			content: `
definitions:
  sounds:
    - {id: a, name: A, url: a.wav}
configs:
  default:
    sounds:
      - {ref: a, volume: -0.5}
`,
			wantErr: "volume override must be >= 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateConfigurationFormat(createTempConfig(t, tt.content))
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadWithProfile_FieldValidation(t *testing.T) {
	tests := []struct {
		name    string
		profile string
		wantErr string
	}{
		{"bad backend", "platform: {backend: jack}", "platform.backend"},
		{"bad facing", "capture: {facing: sideways}", "capture.facing"},
		{"bad size", "capture: {ideal_width: -1}", "capture.ideal_width"},
		{"bad frame rate", "capture: {frame_rate: 1000}", "capture.frame_rate"},
		{"bad mode", "mix: {mode: mute}", "mix.mode"},
		{"loud music", "mix: {music_volume: 11}", "mix.music_volume"},
		{"negative mic", "mix: {mic_volume: -1}", "mix.mic_volume"},
		{"negative duration", "recorder: {max_duration_ms: -5}", "recorder.max_duration_ms"},
		{"negative timeslice", "recorder: {timeslice_ms: -5}", "recorder.timeslice_ms"},
		{"negative margin", "trim: {safety_margin_ms: -1}", "trim.safety_margin_ms"},
		{"negative selection", "trim: {min_selection_ms: -1}", "trim.min_selection_ms"},
		{"too many buckets", "waveform: {buckets: 20000}", "waveform.buckets"},
		{"negative gain", "waveform: {gain: -2}", "waveform.gain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := "configs:\n  default:\n    " + tt.profile + "\n"
			_, err := LoadWithProfile(createTempConfig(t, content), "")
			if err == nil {
				t.Fatalf("Expected error naming %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error naming %q, got: %v", tt.wantErr, err)
			}
		})
	}
}
