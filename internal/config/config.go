// Package config provides configuration management for avpump using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/jmylchreest/avpump/internal/media"
)

// Default configuration values.
const (
	defaultEngine           = "native"
	defaultDestSampleRate   = 16000
	defaultDestChannels     = 1
	defaultDestSampleFormat = "s16"
	defaultRTPPayloadType   = 96
	defaultY4MFrameRate     = 25
	defaultBufferSize       = "64KB"
	defaultStatsInterval    = "10s"
	defaultPacketSamples    = 1024
)

// Engine names.
const (
	EngineNative = "native"
	EngineLibav  = "libav"
)

// Config holds all configuration for the application.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Input    InputConfig    `mapstructure:"input" yaml:"input"`
	Audio    AudioConfig    `mapstructure:"audio" yaml:"audio"`
	Video    VideoConfig    `mapstructure:"video" yaml:"video"`
	Remux    RemuxConfig    `mapstructure:"remux" yaml:"remux"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`   // trace, debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source" yaml:"add_source"`
	TimeFormat string `mapstructure:"time_format" yaml:"time_format"`
}

// EngineConfig selects the codec/container engine.
type EngineConfig struct {
	Name string `mapstructure:"name" yaml:"name"` // native, libav
	// PacketSamples is the number of samples per packet read from WAV
	// files by the native engine.
	PacketSamples int `mapstructure:"packet_samples" yaml:"packet_samples"`
}

// InputConfig describes the source container.
type InputConfig struct {
	URL          string `mapstructure:"url" yaml:"url"`
	RequireAudio bool   `mapstructure:"require_audio" yaml:"require_audio"`
	RequireVideo bool   `mapstructure:"require_video" yaml:"require_video"`
	// Seek is a fractional start position in [0,1]. Zero reads from the
	// beginning without seeking.
	Seek float64 `mapstructure:"seek" yaml:"seek"`
}

// AudioConfig holds the audio decode, resample and sink configuration.
type AudioConfig struct {
	Decode           bool   `mapstructure:"decode" yaml:"decode"`
	DestSampleRate   int    `mapstructure:"dest_sample_rate" yaml:"dest_sample_rate"`
	DestChannels     int    `mapstructure:"dest_channels" yaml:"dest_channels"`
	DestSampleFormat string `mapstructure:"dest_sample_format" yaml:"dest_sample_format"` // u8, s16, s32, flt, dbl
	// RawPath receives decoded audio in its source format, before
	// resampling.
	RawPath string `mapstructure:"raw_path" yaml:"raw_path"`
	// ResampledPath receives the resampled byte stream in the destination
	// format.
	ResampledPath  string `mapstructure:"resampled_path" yaml:"resampled_path"`
	PCMPath        string `mapstructure:"pcm_path" yaml:"pcm_path"`
	WAVPath        string `mapstructure:"wav_path" yaml:"wav_path"`
	RTPAddr        string `mapstructure:"rtp_addr" yaml:"rtp_addr"`
	RTPPayloadType int    `mapstructure:"rtp_payload_type" yaml:"rtp_payload_type"`
	RTPSSRC        uint32 `mapstructure:"rtp_ssrc" yaml:"rtp_ssrc"`
}

// VideoConfig holds the video decode and sink configuration.
type VideoConfig struct {
	Decode       bool   `mapstructure:"decode" yaml:"decode"`
	YUVPath      string `mapstructure:"yuv_path" yaml:"yuv_path"`
	Y4MPath      string `mapstructure:"y4m_path" yaml:"y4m_path"`
	Y4MFrameRate int    `mapstructure:"y4m_frame_rate" yaml:"y4m_frame_rate"`
	// QueueSize bounds the decoded frame queue. Zero disables the queue.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// RemuxConfig holds the packet copy outputs. The container format is
// guessed from each path's extension.
type RemuxConfig struct {
	AudioPath string `mapstructure:"audio_path" yaml:"audio_path"`
	VideoPath string `mapstructure:"video_path" yaml:"video_path"`
}

// OutputConfig holds settings shared by the file outputs.
type OutputConfig struct {
	// BufferSize is the write buffer of each file output.
	// Supports human-readable values like "64KB" or raw byte counts.
	BufferSize ByteSize `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// PipelineConfig holds pump loop configuration.
type PipelineConfig struct {
	// MaxPackets stops the pump after this many packets. Zero means no
	// limit.
	MaxPackets int64 `mapstructure:"max_packets" yaml:"max_packets"`
	// StatsInterval is how often pump statistics are logged. Zero
	// disables periodic statistics.
	StatsInterval Duration `mapstructure:"stats_interval" yaml:"stats_interval"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with AVPUMP_ and use underscores for nesting.
// Example: AVPUMP_AUDIO_DEST_SAMPLE_RATE=48000.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("avpump")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/avpump")
		v.AddConfigPath("$HOME/.avpump")
	}

	v.SetEnvPrefix("AVPUMP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine; defaults and env vars apply.
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration built from defaults only.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(fmt.Sprintf("decoding default config: %v", err))
	}
	return cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Engine defaults
	v.SetDefault("engine.name", defaultEngine)
	v.SetDefault("engine.packet_samples", defaultPacketSamples)

	// Input defaults
	v.SetDefault("input.url", "")
	v.SetDefault("input.require_audio", false)
	v.SetDefault("input.require_video", false)
	v.SetDefault("input.seek", 0.0)

	// Audio defaults
	v.SetDefault("audio.decode", true)
	v.SetDefault("audio.dest_sample_rate", defaultDestSampleRate)
	v.SetDefault("audio.dest_channels", defaultDestChannels)
	v.SetDefault("audio.dest_sample_format", defaultDestSampleFormat)
	v.SetDefault("audio.raw_path", "")
	v.SetDefault("audio.resampled_path", "")
	v.SetDefault("audio.pcm_path", "")
	v.SetDefault("audio.wav_path", "")
	v.SetDefault("audio.rtp_addr", "")
	v.SetDefault("audio.rtp_payload_type", defaultRTPPayloadType)
	v.SetDefault("audio.rtp_ssrc", 0)

	// Video defaults
	v.SetDefault("video.decode", true)
	v.SetDefault("video.yuv_path", "")
	v.SetDefault("video.y4m_path", "")
	v.SetDefault("video.y4m_frame_rate", defaultY4MFrameRate)
	v.SetDefault("video.queue_size", 0)

	// Remux defaults
	v.SetDefault("remux.audio_path", "")
	v.SetDefault("remux.video_path", "")

	// Output defaults
	v.SetDefault("output.buffer_size", defaultBufferSize)

	// Pipeline defaults
	v.SetDefault("pipeline.max_packets", 0)
	v.SetDefault("pipeline.stats_interval", defaultStatsInterval)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Logging validation
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Engine validation
	if c.Engine.Name != EngineNative && c.Engine.Name != EngineLibav {
		return fmt.Errorf("engine.name must be one of: %s, %s", EngineNative, EngineLibav)
	}
	if c.Engine.PacketSamples < 1 {
		return fmt.Errorf("engine.packet_samples must be at least 1")
	}

	// Input validation
	if c.Input.Seek < 0 || c.Input.Seek > 1 {
		return fmt.Errorf("input.seek must be between 0 and 1")
	}

	// Audio validation
	if c.Audio.Decode {
		if _, err := c.Audio.DestFormat(); err != nil {
			return err
		}
	}
	if c.Audio.RTPPayloadType < 0 || c.Audio.RTPPayloadType > 127 {
		return fmt.Errorf("audio.rtp_payload_type must be between 0 and 127")
	}

	// Video validation
	if c.Video.QueueSize < 0 {
		return fmt.Errorf("video.queue_size must not be negative")
	}
	if c.Video.Y4MPath != "" && c.Video.Y4MFrameRate < 1 {
		return fmt.Errorf("video.y4m_frame_rate must be at least 1")
	}

	// Output validation
	if c.Output.BufferSize < 0 {
		return fmt.Errorf("output.buffer_size must not be negative")
	}

	// Pipeline validation
	if c.Pipeline.MaxPackets < 0 {
		return fmt.Errorf("pipeline.max_packets must not be negative")
	}
	if c.Pipeline.StatsInterval < 0 {
		return fmt.Errorf("pipeline.stats_interval must not be negative")
	}

	return nil
}

// DestFormat returns the resampler destination format.
func (c *AudioConfig) DestFormat() (media.AudioFormat, error) {
	if c.DestSampleRate < 1 {
		return media.AudioFormat{}, fmt.Errorf("audio.dest_sample_rate must be at least 1")
	}
	if c.DestChannels < 1 {
		return media.AudioFormat{}, fmt.Errorf("audio.dest_channels must be at least 1")
	}
	format, err := media.ParseSampleFormat(c.DestSampleFormat)
	if err != nil {
		return media.AudioFormat{}, fmt.Errorf("audio.dest_sample_format: %w", err)
	}
	return media.AudioFormat{
		SampleRate: c.DestSampleRate,
		Layout:     media.DefaultChannelLayout(c.DestChannels),
		Format:     format.Packed(),
	}, nil
}

// NeedsResampler reports whether any output consumes resampled audio.
func (c *AudioConfig) NeedsResampler() bool {
	return c.ResampledPath != "" || c.PCMPath != "" || c.WAVPath != "" || c.RTPAddr != ""
}

// NeedsCallback reports whether any output consumes the PCM16 window
// callback.
func (c *AudioConfig) NeedsCallback() bool {
	return c.PCMPath != "" || c.WAVPath != "" || c.RTPAddr != ""
}
