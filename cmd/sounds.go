package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var soundsCmd = &cobra.Command{
	Use:   "sounds",
	Short: "List background sounds",
	Long:  `List the sounds of the active profile's catalog and the local sound library. The selected sound is listed first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newStudio()
		if err != nil {
			return err
		}
		defer svc.Close()

		sounds, err := svc.ListSounds()
		if err != nil {
			return fmt.Errorf("failed to list sounds: %w", err)
		}
		if len(sounds) == 0 {
			fmt.Println("No sounds found")
			return nil
		}
		for _, snd := range sounds {
			mark := " "
			if snd.IsSelected {
				mark = "*"
			}
			title := snd.Name
			if snd.Artist != "" {
				title += " - " + snd.Artist
			}
			fmt.Printf("%s %-20s %-8s %s\n", mark, snd.ID, snd.Source, title)
		}
		return nil
	},
}

var soundsSelectCmd = &cobra.Command{
	Use:   "select [sound-id]",
	Short: "Select the background sound",
	Long:  `Select the sound mixed into new recordings. Without an argument the selection is cleared.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := ""
		if len(args) == 1 {
			id = args[0]
		}

		svc, err := newStudio()
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.SelectSound(context.Background(), id); err != nil {
			return fmt.Errorf("failed to select sound: %w", err)
		}
		if id == "" {
			fmt.Println("Sound selection cleared")
		} else {
			fmt.Printf("Selected sound: %s\n", id)
		}
		return nil
	},
}

func init() {
	soundsCmd.AddCommand(soundsSelectCmd)
}
