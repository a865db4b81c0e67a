package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AIGelman23/Connectify-sub001/internal/recorder"
	"github.com/AIGelman23/Connectify-sub001/internal/service"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record [reel-name]",
	Short: "Record a reel from the camera",
	Long: `Open the camera, mix in the selected sound and record until Ctrl+C or the
maximum reel length is reached. The clip is saved to the output directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		facing, _ := cmd.Flags().GetString("facing")
		sound, _ := cmd.Flags().GetString("sound")
		maxDuration, _ := cmd.Flags().GetDuration("duration")
		if maxDuration > 0 {
			cfg.Recorder.MaxDurationMs = int(maxDuration.Milliseconds())
		}
		slog.Info("Record command started", "reel_name", name, "facing", facing, "sound", sound)

		svc, err := newStudio()
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if sound != "" {
			if err := svc.SelectSound(ctx, sound); err != nil {
				return fmt.Errorf("failed to select sound: %w", err)
			}
		}
		if _, err := svc.OpenCamera(ctx, facing); err != nil {
			return fmt.Errorf("failed to open camera: %w", err)
		}

		updates, cancel := svc.Subscribe()
		defer cancel()
		if err := svc.StartRecording(name); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		slog.Info("Recording... Press Ctrl+C to stop", "max_duration", cfg.RecorderOptions().MaxDuration)

		waitForStop(ctx, updates)

		stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelStop()
		clip, err := svc.StopRecording(stopCtx)
		if clip != nil {
			printClip(clip)
		}
		if err != nil {
			return fmt.Errorf("recording failed: %w", err)
		}
		if clip == nil {
			return fmt.Errorf("recording produced no clip")
		}
		return nil
	},
}

// waitForStop blocks until ctx is cancelled or the recorder stops on its own
func waitForStop(ctx context.Context, updates <-chan service.Status) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("Stopping recording...")
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			switch st.Recorder.State {
			case recorder.StateStopped:
				slog.Info("Maximum reel length reached")
				return
			case recorder.StateError:
				slog.Error("Recording stopped with an error", "error", st.Recorder.Error)
				return
			}
		}
	}
}

func printClip(clip *service.ClipInfo) {
	suffix := ""
	if clip.Partial {
		suffix = " (partial)"
	}
	fmt.Printf("%s  %s  %s%s\n", clip.Path, clip.MimeType, clip.SizeHuman, suffix)
}

func addRecordFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("facing", "f", "", "camera to open: user or environment (overrides config)")
	cmd.Flags().StringP("sound", "s", "", "background sound ID to mix in")
	cmd.Flags().DurationP("duration", "d", 0, "maximum reel length (overrides config)")
}

func init() {
	addRecordFlags(recordCmd)
}
