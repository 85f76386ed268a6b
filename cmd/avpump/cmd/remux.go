package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

var remuxCmd = &cobra.Command{
	Use:   "remux <url>",
	Short: "Copy audio and video packets into new containers",
	Long: `Copy the packets of the best audio and video streams into new
containers without decoding. The output format is guessed from each
path's extension.

  avpump remux input.ts --remux-audio audio.ts --remux-video video.ts`,
	Args: cobra.ExactArgs(1),
	RunE: runRemux,
}

func init() {
	rootCmd.AddCommand(remuxCmd)
	addPumpFlags(remuxCmd.Flags())
}

func runRemux(cmd *cobra.Command, args []string) error {
	c := *cfg
	c.Audio.Decode = false
	c.Video.Decode = false
	if err := applyFlags(&c, cmd.Flags(), args); err != nil {
		return err
	}
	if c.Remux.AudioPath == "" && c.Remux.VideoPath == "" {
		return errors.New("remux needs --remux-audio or --remux-video")
	}
	return pump(cmd, &c)
}
