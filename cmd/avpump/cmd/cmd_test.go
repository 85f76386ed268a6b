package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/avpump/internal/config"
	"github.com/jmylchreest/avpump/internal/testutil"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.wav")
	require.NoError(t, testutil.WriteWAV(path, 44100, 1, testutil.Ramp16(44100)))
	return path
}

// TestVersionCommand tests the version output lists the engines.
func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "avpump")
	assert.Contains(t, out, "native")
}

// TestConfigDump tests the dumped defaults load back into the same config.
func TestConfigDump(t *testing.T) {
	out, err := executeCommand(t, "config", "dump")
	require.NoError(t, err)
	assert.Contains(t, out, "# avpump Configuration File")

	path := filepath.Join(t.TempDir(), "avpump.yaml")
	require.NoError(t, os.WriteFile(path, []byte(out), 0o600))
	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), loaded)

	var raw map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &raw))
	assert.Contains(t, raw, "audio")
}

// TestProbeCommand tests probing a WAV file as JSON.
func TestProbeCommand(t *testing.T) {
	out, err := executeCommand(t, "probe", "--json", writeInput(t))
	require.NoError(t, err)

	var streams []probeStream
	require.NoError(t, json.Unmarshal([]byte(out), &streams))
	require.Len(t, streams, 1)
	assert.Equal(t, "audio", streams[0].Type)
	assert.Equal(t, 44100, streams[0].SampleRate)
	assert.Equal(t, 1, streams[0].Channels)
	assert.True(t, streams[0].Selected)
	assert.InDelta(t, 1.0, streams[0].Duration, 0.01)
}

// TestRunCommand tests a full run writing PCM16 windows.
func TestRunCommand(t *testing.T) {
	pcm := filepath.Join(t.TempDir(), "out.pcm")
	out, err := executeCommand(t, "run", writeInput(t), "--pcm", pcm)
	require.NoError(t, err)
	assert.Contains(t, out, "44 packets")
	assert.Contains(t, out, "100 windows")

	info, err := os.Stat(pcm)
	require.NoError(t, err)
	assert.InDelta(t, 32000, info.Size(), 400)
}

// TestApplyFlags tests flag overrides and the missing input error.
func TestApplyFlags(t *testing.T) {
	c := config.Default()
	flags := runCmd.Flags()
	require.NoError(t, flags.Set("rate", "8000"))
	require.NoError(t, flags.Set("no-audio", "true"))
	t.Cleanup(func() {
		_ = flags.Set("rate", "0")
		_ = flags.Set("no-audio", "false")
		flags.Lookup("rate").Changed = false
		flags.Lookup("no-audio").Changed = false
	})

	require.NoError(t, applyFlags(c, flags, []string{"in.wav"}))
	assert.Equal(t, "in.wav", c.Input.URL)
	assert.Equal(t, 8000, c.Audio.DestSampleRate)
	assert.False(t, c.Audio.Decode)

	assert.Error(t, applyFlags(config.Default(), flags, nil))
}
