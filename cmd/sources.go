package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/AIGelman23/Connectify-sub001/internal/media/virtual"
	"github.com/AIGelman23/Connectify-sub001/internal/platform"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available capture devices",
	Long:  `List the cameras and microphones of the media platform, plus the PipeWire ports of the host when PipeWire is running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := backend
		if name == "" && cfg != nil {
			name = cfg.Platform.Backend
		}
		p, err := platform.New(name, virtual.Options{})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		fmt.Printf("Capture Devices (%s, %s)\n", p.Name(), runtime.GOOS)
		fmt.Printf("═══════════════════════════════════════\n\n")
		devices, err := p.Devices().EnumerateDevices(ctx)
		if err != nil {
			return fmt.Errorf("failed to enumerate devices: %w", err)
		}
		for i, d := range devices {
			facing := ""
			if d.FacingMode != "" {
				facing = " [" + d.FacingMode + "]"
			}
			fmt.Printf("  %d. %-12s %s%s\n", i+1, d.Kind, d.Label, facing)
		}

		ports, err := platform.ListHostPorts(ctx)
		if err != nil {
			slog.Debug("PipeWire ports unavailable", "error", err)
			return nil
		}
		fmt.Printf("\nPIPEWIRE PORTS (%d found):\n", len(ports))
		for i, port := range ports {
			dir := "input"
			if port.Output {
				dir = "output"
			}
			fmt.Printf("  %d. %-6s %s\n", i+1, dir, port.Name)
		}
		return nil
	},
}
