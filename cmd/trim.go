package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var trimCmd = &cobra.Command{
	Use:   "trim [clip-name]",
	Short: "Trim a recorded clip",
	Long: `Cut a recorded clip down to the [start, end] range by replaying it in real
time. The trimmed clip is saved next to the original as <name>_trim.<ext>.
If trimming fails the original clip is kept unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, _ := cmd.Flags().GetDuration("start")
		end, _ := cmd.Flags().GetDuration("end")
		if end <= 0 {
			return fmt.Errorf("--end is required")
		}

		svc, err := newStudio()
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		slog.Info("Trimming clip", "clip", args[0], "start", start, "end", end)
		res, err := svc.Trim(ctx, args[0], start, end)
		if err != nil {
			return fmt.Errorf("failed to trim clip: %w", err)
		}
		if res.Fallback {
			slog.Warn("Trim failed, original clip kept", "error", res.Error)
		} else {
			slog.Info("Clip trimmed", "start", res.Start, "end", res.End, "frames", res.Frames, "audio", res.AudioRouted)
		}
		printClip(&res.Clip)
		return nil
	},
}

func init() {
	trimCmd.Flags().Duration("start", 0, "start of the kept range (e.g. 1.5s)")
	trimCmd.Flags().Duration("end", 0, "end of the kept range (e.g. 12s)")
}
