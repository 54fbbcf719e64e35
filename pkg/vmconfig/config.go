package vmconfig

import (
	"errors"
	"fmt"
)

const (
	// MaxSupportedVCPUs is the hardware ceiling for vCPUs in one guest.
	MaxSupportedVCPUs = 254

	// MaxMemSizeMiB caps guest memory at 1 TiB.
	MaxMemSizeMiB = 0x10_0000
)

// Memory backing types understood by the memory subsystem.
const (
	MemTypeShmem     = "shmem"
	MemTypeHugetlbfs = "hugetlbfs"
)

var (
	ErrInvalidVCPUCount        = errors.New("invalid vCPU count")
	ErrInvalidMaxVCPUCount     = errors.New("max vCPU count must not be less than the vCPU count")
	ErrInvalidThreadsPerCore   = errors.New("threads per core can only be 1 or 2")
	ErrVCPUCountExceedsMaximum = errors.New("topology-derived vCPU count exceeds the supported maximum")
	ErrInvalidCPUTopology      = errors.New("topology provides fewer vCPUs than requested")
	ErrInvalidMemorySize       = errors.New("invalid memory size")
	ErrInvalidMemFilePath      = errors.New("invalid memory file path")
)

// CPUTopology describes the CPU layout exposed to the guest kernel.
type CPUTopology struct {
	ThreadsPerCore uint16 `json:"threads_per_core"`
	CoresPerDie    uint16 `json:"cores_per_die"`
	DiesPerSocket  uint16 `json:"dies_per_socket"`
	Sockets        uint16 `json:"sockets"`
}

// IsZero reports whether the caller left the topology unspecified.
func (t CPUTopology) IsZero() bool {
	return t == CPUTopology{}
}

// VCPUCount returns the vCPU count implied by the topology dimensions.
// The product is computed in 64 bits so an out-of-range result is
// detected instead of wrapping; anything past the representable range
// counts as exceeding the maximum.
func (t CPUTopology) VCPUCount() (uint16, error) {
	product := uint64(t.Sockets) * uint64(t.DiesPerSocket) * uint64(t.CoresPerDie) * uint64(t.ThreadsPerCore)
	if product > MaxSupportedVCPUs {
		return 0, errors.Join(ErrVCPUCountExceedsMaximum, fmt.Errorf("topology yields %d vCPUs, maximum is %d", product, MaxSupportedVCPUs))
	}
	return uint16(product), nil
}

// ValidateTopology checks a caller-supplied topology against the vCPU
// count it has to provide. It returns the topology-derived vCPU count.
func ValidateTopology(t CPUTopology, vcpuCount uint16) (uint16, error) {
	if t.ThreadsPerCore < 1 || t.ThreadsPerCore > 2 {
		return 0, errors.Join(ErrInvalidThreadsPerCore, fmt.Errorf("threads_per_core is %d", t.ThreadsPerCore))
	}

	derived, err := t.VCPUCount()
	if err != nil {
		return 0, err
	}
	if derived < vcpuCount {
		return 0, errors.Join(ErrInvalidCPUTopology, fmt.Errorf("topology yields %d vCPUs, %d requested", derived, vcpuCount))
	}

	return derived, nil
}

// DefaultTopology synthesizes a flat topology for callers that do not
// supply one: single-threaded cores on one die of one socket, sized by
// whichever of vcpuCount/maxVCPUCount is larger.
func DefaultTopology(vcpuCount uint16, maxVCPUCount uint16) CPUTopology {
	cores := vcpuCount
	if maxVCPUCount > vcpuCount {
		cores = maxVCPUCount
	}

	return CPUTopology{
		ThreadsPerCore: 1,
		CoresPerDie:    cores,
		DiesPerSocket:  1,
		Sockets:        1,
	}
}

// ValidateMemSize checks guest memory sizing: nonzero, at most 1 TiB
// and 2 MiB aligned for huge pages.
func ValidateMemSize(memSizeMiB uint64) error {
	if memSizeMiB == 0 || memSizeMiB > MaxMemSizeMiB || memSizeMiB%2 != 0 {
		return errors.Join(ErrInvalidMemorySize, fmt.Errorf("memory size %d MiB", memSizeMiB))
	}
	return nil
}

// Config is the machine configuration of one microVM.
type Config struct {
	VCPUCount    uint16      `json:"vcpu_count"`
	MaxVCPUCount uint16      `json:"max_vcpu_count"`
	CPUTopology  CPUTopology `json:"cpu_topology"`
	MemSizeMiB   uint64      `json:"mem_size_mib"`
	MemType      string      `json:"mem_type"`
	MemFilePath  string      `json:"mem_file_path"`
	CPUPM        bool        `json:"cpu_pm"`
	VPMUFeature  bool        `json:"vpmu_feature"`
	SerialPath   string      `json:"serial_path"`
}

// Default returns the configuration a VM starts out with before any
// set-configuration action has been applied.
func Default() Config {
	return Config{
		VCPUCount:    1,
		MaxVCPUCount: 1,
		CPUTopology: CPUTopology{
			ThreadsPerCore: 1,
			CoresPerDie:    1,
			DiesPerSocket:  1,
			Sockets:        1,
		},
		MemSizeMiB: 128,
		MemType:    MemTypeShmem,
	}
}
