package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/avpump/internal/media"
)

func TestLoad_Defaults(t *testing.T) {
	// Load without config file should use defaults
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	// Engine defaults
	assert.Equal(t, EngineNative, cfg.Engine.Name)
	assert.Equal(t, 1024, cfg.Engine.PacketSamples)

	// Audio defaults
	assert.True(t, cfg.Audio.Decode)
	assert.Equal(t, 16000, cfg.Audio.DestSampleRate)
	assert.Equal(t, 1, cfg.Audio.DestChannels)
	assert.Equal(t, "s16", cfg.Audio.DestSampleFormat)
	assert.Equal(t, 96, cfg.Audio.RTPPayloadType)
	assert.False(t, cfg.Audio.NeedsResampler())

	// Video defaults
	assert.True(t, cfg.Video.Decode)
	assert.Zero(t, cfg.Video.QueueSize)
	assert.Equal(t, 25, cfg.Video.Y4MFrameRate)

	// Output and pipeline defaults
	assert.Equal(t, ByteSize(64*1024), cfg.Output.BufferSize)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.StatsInterval.Duration())
	assert.Zero(t, cfg.Pipeline.MaxPackets)
}

func TestDefault_MatchesLoad(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, cfg, Default())
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "avpump.yaml")

	configContent := `
logging:
  level: "debug"
  format: "json"

input:
  url: "/media/in.ts"
  require_audio: true
  seek: 0.25

audio:
  dest_sample_rate: 48000
  dest_channels: 2
  dest_sample_format: "fltp"
  wav_path: "/tmp/out.wav"

video:
  decode: false

output:
  buffer_size: "1MB"

pipeline:
  max_packets: 500
  stats_interval: "2s"
`
	err := os.WriteFile(configPath, []byte(configContent), 0o600)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/media/in.ts", cfg.Input.URL)
	assert.True(t, cfg.Input.RequireAudio)
	assert.InDelta(t, 0.25, cfg.Input.Seek, 1e-9)
	assert.Equal(t, 48000, cfg.Audio.DestSampleRate)
	assert.True(t, cfg.Audio.NeedsResampler())
	assert.True(t, cfg.Audio.NeedsCallback())
	assert.False(t, cfg.Video.Decode)
	assert.Equal(t, ByteSize(1024*1024), cfg.Output.BufferSize)
	assert.Equal(t, int64(500), cfg.Pipeline.MaxPackets)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.StatsInterval.Duration())

	// Planar names are accepted and stored packed.
	dst, err := cfg.Audio.DestFormat()
	require.NoError(t, err)
	assert.Equal(t, media.AudioFormat{
		SampleRate: 48000,
		Layout:     media.ChannelLayoutStereo,
		Format:     media.SampleFormatFLT,
	}, dst)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "avpump.yaml")
	err := os.WriteFile(configPath, []byte("audio:\n  dest_sample_rate: 8000\n  dest_channels: 2\n"), 0o600)
	require.NoError(t, err)

	t.Setenv("AVPUMP_AUDIO_DEST_SAMPLE_RATE", "22050")
	t.Setenv("AVPUMP_OUTPUT_BUFFER_SIZE", "8KB")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Env should override file
	assert.Equal(t, 22050, cfg.Audio.DestSampleRate)
	assert.Equal(t, ByteSize(8*1024), cfg.Output.BufferSize)
	// File value should be preserved
	assert.Equal(t, 2, cfg.Audio.DestChannels)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "avpump.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("engine:\n  name: gstreamer\n"), 0o600))

	_, err := Load(configPath)
	assert.ErrorContains(t, err, "engine.name")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad engine", func(c *Config) { c.Engine.Name = "" }, "engine.name"},
		{"libav engine", func(c *Config) { c.Engine.Name = EngineLibav }, ""},
		{"packet samples", func(c *Config) { c.Engine.PacketSamples = 0 }, "engine.packet_samples"},
		{"seek below range", func(c *Config) { c.Input.Seek = -0.1 }, "input.seek"},
		{"seek above range", func(c *Config) { c.Input.Seek = 1.5 }, "input.seek"},
		{"dest rate", func(c *Config) { c.Audio.DestSampleRate = 0 }, "audio.dest_sample_rate"},
		{"dest channels", func(c *Config) { c.Audio.DestChannels = 0 }, "audio.dest_channels"},
		{"dest format", func(c *Config) { c.Audio.DestSampleFormat = "s24" }, "audio.dest_sample_format"},
		{"audio decode disabled skips dest", func(c *Config) {
			c.Audio.Decode = false
			c.Audio.DestSampleRate = 0
		}, ""},
		{"payload type", func(c *Config) { c.Audio.RTPPayloadType = 128 }, "audio.rtp_payload_type"},
		{"queue size", func(c *Config) { c.Video.QueueSize = -1 }, "video.queue_size"},
		{"y4m frame rate", func(c *Config) {
			c.Video.Y4MPath = "out.y4m"
			c.Video.Y4MFrameRate = 0
		}, "video.y4m_frame_rate"},
		{"buffer size", func(c *Config) { c.Output.BufferSize = -1 }, "output.buffer_size"},
		{"max packets", func(c *Config) { c.Pipeline.MaxPackets = -1 }, "pipeline.max_packets"},
		{"stats interval", func(c *Config) { c.Pipeline.StatsInterval = -1 }, "pipeline.stats_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}
