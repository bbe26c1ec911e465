package shell

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"1m30s", 90 * time.Second},
		{"2.5", 2500 * time.Millisecond},
		{" 200ms ", 200 * time.Millisecond},
		{"0", 0},
	}
	for _, tt := range tests {
		d, err := ParseTimeout(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, d, tt.in)
	}

	for _, bad := range []string{"", "soon", "-1s", "-3"} {
		_, err := ParseTimeout(bad)
		assert.ErrorIs(t, err, ErrInvalidTimeout, bad)
	}
}
