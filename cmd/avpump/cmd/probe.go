package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/avpump/internal/demux"
	"github.com/jmylchreest/avpump/internal/media"
	"github.com/jmylchreest/avpump/internal/observability"
)

var probeJSON bool

var probeCmd = &cobra.Command{
	Use:   "probe <url>",
	Short: "List the streams of an input",
	Long:  `Open an input with the configured engine and print its streams.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

func init() {
	probeCmd.Flags().String("engine", "", "engine name (native, libav)")
	probeCmd.Flags().BoolVar(&probeJSON, "json", false, "output streams as JSON")
	rootCmd.AddCommand(probeCmd)
}

// probeStream is the printed description of one stream.
type probeStream struct {
	Index      int     `json:"index"`
	Type       string  `json:"type"`
	Codec      string  `json:"codec"`
	TimeBase   string  `json:"time_base"`
	Duration   float64 `json:"duration_seconds"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Channels   int     `json:"channels,omitempty"`
	Format     string  `json:"format,omitempty"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	Selected   bool    `json:"selected"`
}

func runProbe(cmd *cobra.Command, args []string) error {
	c := *cfg
	if cmd.Flags().Changed("engine") {
		c.Engine.Name, _ = cmd.Flags().GetString("engine")
	}
	eng, err := newEngine(&c)
	if err != nil {
		return err
	}

	d := demux.New(eng, demux.Options{
		Logger: observability.WithComponent(slog.Default(), "probe"),
	})
	if err := d.Open(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("opening %s: %w", args[0], err)
	}
	defer d.Close()

	streams := make([]probeStream, 0, len(d.Streams()))
	for _, s := range d.Streams() {
		streams = append(streams, describe(s, d.AudioIndex(), d.VideoIndex()))
	}

	out := cmd.OutOrStdout()
	if probeJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(streams)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tTYPE\tCODEC\tTIME BASE\tDURATION\tDETAILS\tSELECTED")
	for _, s := range streams {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.3fs\t%s\t%t\n",
			s.Index, s.Type, s.Codec, s.TimeBase, s.Duration, s.details(), s.Selected)
	}
	return tw.Flush()
}

func (p probeStream) details() string {
	switch {
	case p.SampleRate > 0:
		return fmt.Sprintf("%d Hz, %d ch, %s", p.SampleRate, p.Channels, p.Format)
	case p.Width > 0:
		return fmt.Sprintf("%dx%d, %s", p.Width, p.Height, p.Format)
	}
	return "-"
}

func describe(s media.StreamInfo, audioIndex, videoIndex int) probeStream {
	p := probeStream{
		Index:    s.Index,
		Type:     s.MediaType().String(),
		Codec:    s.Params.CodecName,
		TimeBase: s.TimeBase.String(),
		Duration: s.DurationTime().Seconds(),
		Selected: s.Index == audioIndex || s.Index == videoIndex,
	}
	switch s.MediaType() {
	case media.MediaTypeAudio:
		p.SampleRate = s.Params.SampleRate
		p.Channels = s.Params.Layout.Channels()
		p.Format = s.Params.SampleFormat.String()
	case media.MediaTypeVideo:
		p.Width = s.Params.Width
		p.Height = s.Params.Height
		p.Format = s.Params.PixelFormat.String()
	}
	return p
}
