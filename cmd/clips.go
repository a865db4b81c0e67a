package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clipsCmd = &cobra.Command{
	Use:   "clips",
	Short: "List recorded clips",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newStudio()
		if err != nil {
			return err
		}
		defer svc.Close()

		clips, err := svc.ListClips()
		if err != nil {
			return fmt.Errorf("failed to list clips: %w", err)
		}
		fmt.Printf("%d clips in %s\n", len(clips), cfg.Output.Directory)
		for _, c := range clips {
			fmt.Printf("  %-32s %10s  %s\n", c.Name, c.SizeHuman, c.ModTimeHuman)
		}
		return nil
	},
}
