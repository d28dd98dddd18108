package perfsession

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCPURange(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{"0\n", []int{0}},
		{"0-3", []int{0, 1, 2, 3}},
		{"0-1,4,6-7\n", []int{0, 1, 4, 6, 7}},
	}
	for _, tt := range tests {
		got, err := readCPURange(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "a-b", "1,x"} {
		_, err := readCPURange(bad)
		assert.Error(t, err, bad)
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{CPUs: []int{0}}
	require.NoError(t, o.setDefaults())
	assert.Equal(t, 8, o.RingPages)
	assert.NotEmpty(t, o.OutputDir)
	assert.Positive(t, o.DrainGrace)

	bad := Options{CPUs: []int{0}, RingPages: 6}
	assert.Error(t, bad.setDefaults())
}

func TestIsProvider(t *testing.T) {
	for _, p := range append(DefaultKernelProviders, DefaultUserProviders...) {
		assert.True(t, IsProvider(p), p)
	}
	assert.False(t, IsProvider("gpu-clock"))
}
