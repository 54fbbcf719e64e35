package devices

import (
	"errors"
	"fmt"
	"sync"

	"github.com/loopholelabs/logging/types"

	"github.com/emberhq/ember/pkg/vm"
)

// BlockDeviceConfig describes one virtio-blk device.
type BlockDeviceConfig struct {
	DriveID      string       `json:"drive_id"`
	PathOnHost   string       `json:"path_on_host"`
	IsRootDevice bool         `json:"is_root_device"`
	IsReadOnly   bool         `json:"is_read_only"`
	NumQueues    uint16       `json:"num_queues"`
	QueueSize    uint16       `json:"queue_size"`
	RateLimiter  *RateLimiter `json:"rate_limiter"`
}

// BlockDeviceUpdate carries the runtime-updatable properties of a
// block device: its rate limiters.
type BlockDeviceUpdate struct {
	DriveID     string       `json:"drive_id"`
	RateLimiter *RateLimiter `json:"rate_limiter"`
}

// BlockDeviceManager owns the block devices of one VM.
type BlockDeviceManager struct {
	log types.Logger

	mu      sync.Mutex
	devices map[string]BlockDeviceConfig
}

func NewBlockDeviceManager(log types.Logger) *BlockDeviceManager {
	return &BlockDeviceManager{
		log:     log,
		devices: make(map[string]BlockDeviceConfig),
	}
}

// InsertDevice adds a block device, or replaces the configuration of
// an existing drive id when the VM has not booted yet.
func (m *BlockDeviceManager) InsertDevice(ctx vm.DeviceOpContext, config BlockDeviceConfig) error {
	if config.DriveID == "" {
		return errors.Join(ErrInvalidDeviceID, fmt.Errorf("empty drive id"))
	}
	if err := config.RateLimiter.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.log != nil {
		m.log.Debug().Str("drive", config.DriveID).Bool("hotplug", ctx.Hotplug).Msg("inserting block device")
	}
	m.devices[config.DriveID] = config
	return nil
}

// UpdateRateLimiters replaces the rate limiters of a running device.
func (m *BlockDeviceManager) UpdateRateLimiters(update BlockDeviceUpdate) error {
	if err := update.RateLimiter.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	device, ok := m.devices[update.DriveID]
	if !ok {
		return errors.Join(ErrInvalidDeviceID, fmt.Errorf("drive %q", update.DriveID))
	}
	device.RateLimiter = update.RateLimiter
	m.devices[update.DriveID] = device
	return nil
}

// RemoveDevice detaches a block device by drive id.
func (m *BlockDeviceManager) RemoveDevice(ctx vm.DeviceOpContext, driveID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[driveID]; !ok {
		return errors.Join(ErrInvalidDeviceID, fmt.Errorf("drive %q", driveID))
	}

	if m.log != nil {
		m.log.Debug().Str("drive", driveID).Bool("hotplug", ctx.Hotplug).Msg("removing block device")
	}
	delete(m.devices, driveID)
	return nil
}

// Device returns the stored configuration for a drive id.
func (m *BlockDeviceManager) Device(driveID string) (BlockDeviceConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	device, ok := m.devices[driveID]
	return device, ok
}
