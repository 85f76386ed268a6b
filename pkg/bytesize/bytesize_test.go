package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Size
	}{
		{"0", 0},
		{"4096", 4096},
		{"512B", 512},
		{"64k", 64 * KB},
		{"64KB", 64 * KB},
		{"64 KiB", 64 * KB},
		{"1.5MB", MB + MB/2},
		{"2 gib", 2 * GB},
		{"1TB", TB},
		{" 10 bytes ", 10},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, input := range []string{"", "   ", "MB", "12XB", "1..5KB", "-4KB", "1e30TB"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			assert.Error(t, err)
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		size Size
		want string
	}{
		{0, "0B"},
		{1000, "1000B"},
		{KB, "1KB"},
		{64 * KB, "64KB"},
		{MB + MB/2, "1.5MB"},
		{GB + GB/3, "1.33GB"},
		{-2 * MB, "-2MB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.size))
		assert.Equal(t, tt.want, tt.size.String())
	}
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []Size{0, 17, KB, 64 * KB, 3 * MB, 5 * GB} {
		parsed, err := Parse(Format(s))
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
}

func TestMustParse(t *testing.T) {
	assert.Equal(t, 8*KB, MustParse("8KB"))
	assert.Panics(t, func() { MustParse("lots") })
}
