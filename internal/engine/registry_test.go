package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/engine/native"
)

// TestRegistry tests lookup of the registered native engine.
func TestRegistry(t *testing.T) {
	assert.Contains(t, engine.Names(), native.Name)

	e, err := engine.New(native.Name, engine.Options{PacketSamples: 256})
	require.NoError(t, err)
	assert.Equal(t, native.Name, e.Name())

	_, err = engine.New("gstreamer", engine.Options{})
	assert.ErrorContains(t, err, "unknown engine")
}

// TestRegisterTwicePanics tests duplicate registration.
func TestRegisterTwicePanics(t *testing.T) {
	assert.Panics(t, func() {
		engine.Register(native.Name, func(engine.Options) (engine.Engine, error) { return nil, nil })
	})
	assert.Panics(t, func() { engine.Register("nil-factory", nil) })
}
