package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/softglow/ambientd/internal/ffmpeg"
)

// probeCmd inspects a media file and prints its metadata, useful for
// checking what the pipeline will see without starting the server.
var probeCmd = &cobra.Command{
	Use:   "probe <file>",
	Short: "Probe a media file",
	Long:  "Prints the audio/subtitle tracks and duration of a media file as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		if _, err := os.Stat(args[0]); err != nil {
			return fmt.Errorf("source file: %w", err)
		}

		detector := ffmpeg.NewBinaryDetector(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
		prober := ffmpeg.NewProber(detector, logger)

		info := prober.Probe(cmd.Context(), args[0])

		out, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding probe result: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
