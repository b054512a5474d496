package hwprobe

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilities_HasEncoder(t *testing.T) {
	c := &Capabilities{
		VideoEncoders: []string{"libx264", "h264_nvenc"},
		AudioEncoders: []string{"aac", "libopus"},
	}

	assert.True(t, c.HasEncoder("libx264"))
	assert.True(t, c.HasEncoder("h264_nvenc"))
	assert.True(t, c.HasEncoder("aac"))
	assert.False(t, c.HasEncoder("hevc_nvenc"))
}

func TestCapabilities_HasHWAccel(t *testing.T) {
	c := &Capabilities{
		HWAccels: []HWAccelInfo{
			{Type: HWAccelCUDA, Available: true},
			{Type: HWAccelVAAPI, Available: false},
		},
	}

	assert.True(t, c.HasHWAccel(HWAccelCUDA))
	assert.False(t, c.HasHWAccel(HWAccelVAAPI)) // Not available
	assert.False(t, c.HasHWAccel(HWAccelQSV))   // Not present
}

func TestGPUClass_DefaultMaxEncodeSessions(t *testing.T) {
	tests := []struct {
		class    GPUClass
		expected int
	}{
		{GPUClassConsumer, 5},
		{GPUClassProfessional, 32},
		{GPUClassDatacenter, 0},
		{GPUClassIntegrated, 2},
		{GPUClassUnknown, 3},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.class.DefaultMaxEncodeSessions())
		})
	}
}

func TestSystemStats_JSON(t *testing.T) {
	stats := &SystemStats{
		Hostname:    "worker-1",
		OS:          "linux",
		Arch:        "amd64",
		CPUCores:    8,
		CPUPercent:  45.5,
		LoadAvg1m:   2.5,
		MemoryTotal: 16 * 1024 * 1024 * 1024,
		MemoryUsed:  8 * 1024 * 1024 * 1024,
	}

	data, err := json.Marshal(stats)
	require.NoError(t, err)

	var decoded SystemStats
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)

	assert.Equal(t, stats.Hostname, decoded.Hostname)
	assert.Equal(t, stats.CPUPercent, decoded.CPUPercent)
}
