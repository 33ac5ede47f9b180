package registryfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContentRangeTotal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value   string
		want    int64
		wantErr bool
	}{
		{"bytes 0-0/1234", 1234, false},
		{"bytes 5-9/10", 10, false},
		{" bytes 0-0/7", 7, false},
		{"bytes 0-0/0", 0, false},
		{"bytes 0-0/*", 0, true},
		{"bytes */10", 10, false},
		{"0-0/10", 0, true},
		{"bytes 0-0", 0, true},
		{"bytes 0-0/-5", 0, true},
		{"bytes 0-0/notanumber", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Parallel()
			got, err := parseContentRangeTotal(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
