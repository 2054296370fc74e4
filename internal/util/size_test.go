package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 B", FormatSize(0))
	assert.Equal(t, "512.00 B", FormatSize(512))
	assert.Equal(t, "1.50 KB", FormatSize(1536))
	assert.Equal(t, "1.00 MB", FormatSize(1<<20))
	assert.Equal(t, "2048.00 TB", FormatSize(1<<51))
}

func TestParseSize(t *testing.T) {
	tests := map[string]int64{
		"":       0,
		"512":    512,
		"512B":   512,
		"10KB":   10 << 10,
		"1.5 mb": 3 << 19,
		"2GB":    2 << 30,
		"1TB":    1 << 40,
	}
	for in, want := range tests {
		got, err := ParseSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"MB", "ten", "-1KB", "NaN", "1e10TB", "8EB", "9223372036854775808"} {
		_, err := ParseSize(bad)
		assert.Error(t, err, bad)
	}
}
