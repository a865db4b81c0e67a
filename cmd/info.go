package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [reel-name]",
	Short: "Show resolved configuration and file paths for a reel",
	Long:  `Display the resolved configuration with inheritance indicators and the file path a reel with the given name would be saved to. Shows which values are inherited from default vs profile-specific.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			cleanName := cleanFileName(args[0])
			fmt.Printf("=== FILE PATHS ===\n")
			fmt.Printf("output_webm: %s\n", filepath.Join(cfg.Output.Directory, cleanName+".webm"))
			fmt.Printf("output_trim: %s\n", filepath.Join(cfg.Output.Directory, cleanName+"_trim.webm"))
			fmt.Printf("clean_name: %s\n", cleanName)
		}

		in := cfg.Inheritance
		fmt.Printf("\n=== RESOLVED CONFIGURATION ===\n")

		fmt.Printf("\n[Capture]\n")
		fmt.Printf("facing: %s %s\n", cfg.Capture.Facing, getInheritanceIndicator(in.Source("capture.facing")))
		fmt.Printf("ideal_size: %dx%d %s\n", cfg.Capture.IdealWidth, cfg.Capture.IdealHeight, getInheritanceIndicator(in.Source("capture.ideal_width")))
		fmt.Printf("frame_rate: %d %s\n", cfg.Capture.FrameRate, getInheritanceIndicator(in.Source("capture.frame_rate")))

		mo := cfg.MixOptions()
		fmt.Printf("\n[Mix]\n")
		fmt.Printf("mode: %s %s\n", mo.Mode, getInheritanceIndicator(in.Source("mix.mode")))
		fmt.Printf("music_volume: %.2f %s\n", mo.MusicVolume, getInheritanceIndicator(in.Source("mix.music_volume")))
		fmt.Printf("mic_volume: %.2f %s\n", mo.MicVolume, getInheritanceIndicator(in.Source("mix.mic_volume")))
		fmt.Printf("monitor: %t %s\n", mo.Monitor, getInheritanceIndicator(in.Source("mix.monitor")))

		ro := cfg.RecorderOptions()
		fmt.Printf("\n[Recorder]\n")
		fmt.Printf("max_duration: %s %s\n", ro.MaxDuration, getInheritanceIndicator(in.Source("recorder.max_duration_ms")))
		fmt.Printf("timeslice: %s %s\n", ro.Timeslice, getInheritanceIndicator(in.Source("recorder.timeslice_ms")))
		fmt.Printf("mime_types: %s %s\n", strings.Join(cfg.Recorder.MimeTypes, ", "), getInheritanceIndicator(in.Source("recorder.mime_types")))

		fmt.Printf("\n[Trim]\n")
		fmt.Printf("frame_rate: %d %s\n", cfg.Trim.FrameRate, getInheritanceIndicator(in.Source("trim.frame_rate")))
		fmt.Printf("safety_margin_ms: %d %s\n", cfg.Trim.SafetyMarginMs, getInheritanceIndicator(in.Source("trim.safety_margin_ms")))
		fmt.Printf("min_selection_ms: %d %s\n", cfg.Trim.MinSelectionMs, getInheritanceIndicator(in.Source("trim.min_selection_ms")))

		fmt.Printf("\n[Sounds] %s\n", getInheritanceIndicator(in.Source("sounds")))
		for i, snd := range cfg.Sounds {
			fmt.Printf("%d. %s: %s (volume=%.2f)\n", i, snd.ID, snd.URL, snd.Volume)
		}

		fmt.Printf("\n[Output]\n")
		fmt.Printf("directory: %s %s\n", cfg.Output.Directory, getInheritanceIndicator(in.Source("output.directory")))
		fmt.Printf("sounds_directory: %s %s\n", cfg.Output.SoundsDirectory, getInheritanceIndicator(in.Source("output.sounds_directory")))

		return nil
	},
}

// cleanFileName replicates the clip naming of the studio service
func cleanFileName(name string) string {
	// Allows: letters, numbers, spaces, hyphens, underscores
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' ' || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return strings.ReplaceAll(strings.TrimSpace(result.String()), " ", "_")
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
