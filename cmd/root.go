package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/AIGelman23/Connectify-sub001/internal/config"
	"github.com/AIGelman23/Connectify-sub001/internal/platform"
	"github.com/AIGelman23/Connectify-sub001/internal/service"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	backend      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "reelcapture [reel-name]",
	Short: "Camera capture tool for short music reels",
	Long: `ReelCapture records short vertical video reels from the camera with a
background sound mixed into the audio track.

It can flip between front and back cameras, mix or replace the microphone
with the selected sound, cap recordings at a maximum length and trim
finished clips frame by frame.

When a reel name is provided, it acts as 'reelcapture record [reel-name]'.`,
	Args: cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel)

		// The sources command only needs a config when one is given.
		if cmd.Name() == "sources" && cfgFile == "" {
			return nil
		}

		explicit := cfgFile != ""
		if !explicit {
			cfgFile = os.ExpandEnv("$HOME/.config/reelcapture.yaml")
			if _, err := os.Stat(cfgFile); os.IsNotExist(err) && profile == "" {
				slog.Debug("No config file found, using built-in defaults", "path", cfgFile)
				cfgFile = ""
				cfg = config.Default()
				return applyBackendFlag()
			}
		}

		var err error
		cfg, err = config.LoadWithProfile(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return applyBackendFlag()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// If a reel name is provided, delegate to record command
		if len(args) == 1 {
			return recordCmd.RunE(cmd, args)
		}
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/reelcapture.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "media platform backend (overrides config)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=pipewire tracing")

	addRecordFlags(rootCmd)

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(trimCmd)
	rootCmd.AddCommand(waveformCmd)
	rootCmd.AddCommand(soundsCmd)
	rootCmd.AddCommand(clipsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(serveCmd)
}

func applyBackendFlag() error {
	if backend == "" {
		return nil
	}
	if _, err := platform.ParseBackend(backend); err != nil {
		return err
	}
	cfg.Platform.Backend = backend
	return nil
}

// newStudio creates the service for one command run
func newStudio() (*service.Studio, error) {
	svc, err := service.New(cfg, cfgFile, service.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to create studio: %w", err)
	}
	return svc, nil
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	slog.SetDefault(slog.New(handler))

	if level >= 2 {
		os.Setenv("PIPEWIRE_DEBUG", "3")
	}
}
