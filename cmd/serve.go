package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AIGelman23/Connectify-sub001/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the ReelCapture web server to control the camera, sounds, recording
and trimming over HTTP. Status changes are pushed on the /api/events websocket.

The server will display the local network URL for easy access from mobile devices.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")

		svc, err := newStudio()
		if err != nil {
			return err
		}
		defer func() {
			if err := svc.Close(); err != nil {
				slog.Warn("Studio shutdown reported errors", "error", err)
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		slog.Info("ReelCapture web server starting", "port", port, "config", cfgFile)
		if err := server.New(svc, cfgFile, port).Start(ctx); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "8080", "port for the web server")
}
