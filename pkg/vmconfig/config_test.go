package vmconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTopologyThreadsPerCore(t *testing.T) {
	for _, threads := range []uint16{0, 3, 4, 16, 255} {
		topology := CPUTopology{
			ThreadsPerCore: threads,
			CoresPerDie:    1,
			DiesPerSocket:  1,
			Sockets:        1,
		}
		_, err := ValidateTopology(topology, 1)
		assert.ErrorIs(t, err, ErrInvalidThreadsPerCore, "threads_per_core=%d", threads)
	}

	for _, threads := range []uint16{1, 2} {
		topology := CPUTopology{
			ThreadsPerCore: threads,
			CoresPerDie:    2,
			DiesPerSocket:  1,
			Sockets:        1,
		}
		_, err := ValidateTopology(topology, 2)
		assert.NoError(t, err, "threads_per_core=%d", threads)
	}
}

func TestValidateTopologyCeiling(t *testing.T) {
	tests := []struct {
		name     string
		topology CPUTopology
	}{
		{
			name:     "just over the ceiling",
			topology: CPUTopology{ThreadsPerCore: 2, CoresPerDie: 128, DiesPerSocket: 1, Sockets: 1},
		},
		{
			name:     "huge product",
			topology: CPUTopology{ThreadsPerCore: 2, CoresPerDie: 65535, DiesPerSocket: 65535, Sockets: 65535},
		},
		{
			name:     "single dimension too large",
			topology: CPUTopology{ThreadsPerCore: 1, CoresPerDie: 255, DiesPerSocket: 1, Sockets: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateTopology(tt.topology, 1)
			assert.ErrorIs(t, err, ErrVCPUCountExceedsMaximum)
		})
	}
}

func TestValidateTopologyTooSmall(t *testing.T) {
	topology := CPUTopology{ThreadsPerCore: 1, CoresPerDie: 2, DiesPerSocket: 1, Sockets: 1}

	_, err := ValidateTopology(topology, 4)
	assert.ErrorIs(t, err, ErrInvalidCPUTopology)

	derived, err := ValidateTopology(topology, 2)
	assert.NoError(t, err)
	assert.Equal(t, uint16(2), derived)
}

func TestValidateTopologyAtCeiling(t *testing.T) {
	topology := CPUTopology{ThreadsPerCore: 2, CoresPerDie: 127, DiesPerSocket: 1, Sockets: 1}

	derived, err := ValidateTopology(topology, 254)
	assert.NoError(t, err)
	assert.Equal(t, uint16(254), derived)
}

func TestTopologyIsZero(t *testing.T) {
	assert.True(t, CPUTopology{}.IsZero())
	assert.False(t, Default().CPUTopology.IsZero())
	assert.False(t, CPUTopology{ThreadsPerCore: 1}.IsZero())
}

func TestDefaultTopology(t *testing.T) {
	topology := DefaultTopology(4, 0)
	assert.Equal(t, CPUTopology{ThreadsPerCore: 1, CoresPerDie: 4, DiesPerSocket: 1, Sockets: 1}, topology)

	topology = DefaultTopology(4, 8)
	assert.Equal(t, CPUTopology{ThreadsPerCore: 1, CoresPerDie: 8, DiesPerSocket: 1, Sockets: 1}, topology)

	derived, err := topology.VCPUCount()
	assert.NoError(t, err)
	assert.Equal(t, uint16(8), derived)
}

func TestValidateMemSize(t *testing.T) {
	for _, size := range []uint64{0, 1, 3, 5, 127, MaxMemSizeMiB + 1, MaxMemSizeMiB + 2} {
		assert.ErrorIs(t, ValidateMemSize(size), ErrInvalidMemorySize, "mem_size_mib=%d", size)
	}

	for _, size := range []uint64{2, 128, 1024, MaxMemSizeMiB - 2, MaxMemSizeMiB} {
		assert.NoError(t, ValidateMemSize(size), "mem_size_mib=%d", size)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := Default()

	assert.Equal(t, uint16(1), config.VCPUCount)
	assert.Equal(t, uint16(1), config.MaxVCPUCount)
	assert.Equal(t, MemTypeShmem, config.MemType)
	assert.NoError(t, ValidateMemSize(config.MemSizeMiB))

	derived, err := ValidateTopology(config.CPUTopology, config.VCPUCount)
	assert.NoError(t, err)
	assert.Equal(t, config.MaxVCPUCount, derived)
}
