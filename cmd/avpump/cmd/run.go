package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmylchreest/avpump/internal/config"
	"github.com/jmylchreest/avpump/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run [url]",
	Short: "Pump an input through the configured outputs",
	Long: `Open the input, build every configured output and pump packets until
the input ends, --max-packets is reached or the process is interrupted.

Outputs:
  --raw          decoded audio in its source format
  --resampled    resampled audio in the destination format
  --pcm          resampled audio as little-endian s16
  --wav          resampled audio as a WAV file
  --rtp          resampled audio as L16 RTP over UDP
  --yuv          decoded video as raw planar YUV
  --y4m          decoded video as YUV4MPEG2
  --remux-audio  audio packets copied into a new container
  --remux-video  video packets copied into a new container`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addPumpFlags(runCmd.Flags())

	runCmd.Flags().Bool("no-audio", false, "do not decode audio")
	runCmd.Flags().Bool("video", false, "decode video")
	runCmd.Flags().Int("rate", 0, "destination sample rate")
	runCmd.Flags().Int("channels", 0, "destination channel count")
	runCmd.Flags().String("format", "", "destination sample format (u8, s16, s32, flt, dbl)")
	runCmd.Flags().String("raw", "", "decoded audio output path")
	runCmd.Flags().String("resampled", "", "resampled audio output path")
	runCmd.Flags().String("pcm", "", "PCM16 output path")
	runCmd.Flags().String("wav", "", "WAV output path")
	runCmd.Flags().String("rtp", "", "RTP destination address (host:port)")
	runCmd.Flags().String("yuv", "", "raw YUV output path")
	runCmd.Flags().String("y4m", "", "YUV4MPEG2 output path")
	runCmd.Flags().Int("queue-size", 0, "decoded video frame queue size")
}

// addPumpFlags registers the flags shared by run and remux.
func addPumpFlags(flags *pflag.FlagSet) {
	flags.String("engine", "", "engine name (native, libav)")
	flags.Float64("seek", 0, "start position as a fraction of the duration, 0 to 1")
	flags.Int64("max-packets", 0, "stop after this many packets (0 for no limit)")
	flags.String("remux-audio", "", "audio packet copy output path")
	flags.String("remux-video", "", "video packet copy output path")
}

// applyFlags overrides configuration values with explicitly set flags.
func applyFlags(c *config.Config, flags *pflag.FlagSet, args []string) error {
	if len(args) > 0 {
		c.Input.URL = args[0]
	}

	setString := func(name string, dst *string) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	setInt := func(name string, dst *int) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}

	setString("engine", &c.Engine.Name)
	if flags.Changed("seek") {
		c.Input.Seek, _ = flags.GetFloat64("seek")
	}
	if flags.Changed("max-packets") {
		c.Pipeline.MaxPackets, _ = flags.GetInt64("max-packets")
	}
	setString("remux-audio", &c.Remux.AudioPath)
	setString("remux-video", &c.Remux.VideoPath)

	if flags.Lookup("no-audio") != nil && flags.Changed("no-audio") {
		noAudio, _ := flags.GetBool("no-audio")
		c.Audio.Decode = !noAudio
	}
	if flags.Lookup("video") != nil && flags.Changed("video") {
		c.Video.Decode, _ = flags.GetBool("video")
	}
	setInt("rate", &c.Audio.DestSampleRate)
	setInt("channels", &c.Audio.DestChannels)
	setString("format", &c.Audio.DestSampleFormat)
	setString("raw", &c.Audio.RawPath)
	setString("resampled", &c.Audio.ResampledPath)
	setString("pcm", &c.Audio.PCMPath)
	setString("wav", &c.Audio.WAVPath)
	setString("rtp", &c.Audio.RTPAddr)
	setString("yuv", &c.Video.YUVPath)
	setString("y4m", &c.Video.Y4MPath)
	setInt("queue-size", &c.Video.QueueSize)

	if c.Input.URL == "" {
		return pipeline.ErrNoInput
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating flags: %w", err)
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := applyFlags(cfg, cmd.Flags(), args); err != nil {
		return err
	}
	return pump(cmd, cfg)
}

// pump builds a pipeline from c and runs it until the input ends or the
// process receives SIGINT or SIGTERM.
func pump(cmd *cobra.Command, c *config.Config) error {
	logger := slog.Default()

	eng, err := newEngine(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(pipeline.Options{
		Config: c,
		Engine: eng,
		Logger: logger,
	})
	defer func() {
		if err := p.Close(); err != nil {
			logger.Error("closing pipeline", slog.String("error", err.Error()))
		}
	}()

	if err := p.Open(ctx); err != nil {
		return fmt.Errorf("opening pipeline: %w", err)
	}
	logger.Info("pipeline open",
		slog.String("session_id", p.SessionID()),
		slog.String("engine", eng.Name()),
		slog.String("url", c.Input.URL),
		slog.Any("outputs", p.Outputs()),
	)

	result, err := p.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("interrupted", slog.Int64("packets", result.Packets))
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "session %s: %d packets, %d audio frames, %d video frames, %d windows in %s\n",
		result.SessionID,
		result.Packets,
		result.Stats.Audio.Frames,
		result.Stats.Video.Frames,
		result.Stats.Resample.Windows,
		result.Duration.Round(time.Millisecond),
	)
	return nil
}
