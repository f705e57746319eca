package timespec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeconds(t *testing.T) {
	tests := []struct {
		spec    string
		want    float64
		wantErr string
	}{
		{spec: "5s", want: 5},
		{spec: "250ms", want: 0.25},
		{spec: "1m30s", want: 90},
		{spec: "1.5", want: 1.5},
		{spec: " 2 ", want: 2},
		{spec: "0", want: 0},
		{spec: "", wantErr: "empty duration"},
		{spec: "soon", wantErr: "invalid duration: soon"},
		{spec: "-1", wantErr: "cannot be negative"},
		{spec: "-2s", wantErr: "cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := Seconds(tt.spec)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestSecondsWithDeviation(t *testing.T) {
	tests := []struct {
		spec    string
		value   float64
		dev     float64
		wantErr string
	}{
		{spec: "2s", value: 2},
		{spec: "2s±500ms", value: 2, dev: 0.5},
		{spec: "3+-1", value: 3, dev: 1},
		{spec: "1s±2s", wantErr: "exceeds duration"},
		{spec: "1s±later", wantErr: "invalid deviation"},
		{spec: "±1s", wantErr: "empty duration"},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			value, dev, err := SecondsWithDeviation(tt.spec)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.value, value, 1e-9)
			assert.InDelta(t, tt.dev, dev, 1e-9)
		})
	}
}

func TestDuration(t *testing.T) {
	d, err := Duration("1.5")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	d, err = Duration("100ms")
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, d)

	_, err = Duration("x")
	assert.Error(t, err)
}
