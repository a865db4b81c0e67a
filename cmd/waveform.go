package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

const waveformWidth = 40

var waveformCmd = &cobra.Command{
	Use:   "waveform [sound-id]",
	Short: "Show the waveform of a sound",
	Long: `Decode a catalog or library sound and print its peak envelope. Sounds that
cannot be decoded get a synthetic waveform.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		buckets, _ := cmd.Flags().GetInt("buckets")
		asJSON, _ := cmd.Flags().GetBool("json")

		svc, err := newStudio()
		if err != nil {
			return err
		}
		defer svc.Close()

		wf, err := svc.Waveform(context.Background(), args[0], buckets)
		if err != nil {
			return fmt.Errorf("failed to extract waveform: %w", err)
		}

		if asJSON {
			out, err := sonic.ConfigStd.MarshalIndent(wf, "", "  ")
			if err != nil {
				return fmt.Errorf("error marshaling waveform: %w", err)
			}
			fmt.Println(string(out))
			return nil
		}

		kind := fmt.Sprintf("%.2fs @ %d Hz", wf.Duration, wf.SampleRate)
		if wf.Synthetic {
			kind = "synthetic"
		}
		fmt.Printf("%s (%d buckets, %s)\n", args[0], len(wf.Samples), kind)
		for i, s := range wf.Samples {
			fmt.Printf("%4d %s\n", i, strings.Repeat("#", int(s*waveformWidth+0.5)))
		}
		return nil
	},
}

func init() {
	waveformCmd.Flags().IntP("buckets", "b", 0, "number of buckets (default from config)")
	waveformCmd.Flags().Bool("json", false, "print the waveform as JSON")
}
