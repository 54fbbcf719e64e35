package devices

import (
	"errors"
	"fmt"
	"sync"

	"github.com/loopholelabs/logging/types"

	"github.com/emberhq/ember/pkg/vm"
)

// Filesystem backend mount operations.
const (
	FsMountOpAttach = "attach"
	FsMountOpDetach = "detach"
)

// FsDeviceConfig describes one virtio-fs shared filesystem device.
type FsDeviceConfig struct {
	FsID        string       `json:"fs_id"`
	Tag         string       `json:"tag"`
	NumQueues   uint16       `json:"num_queues"`
	QueueSize   uint16       `json:"queue_size"`
	CacheSize   uint64       `json:"cache_size"`
	RateLimiter *RateLimiter `json:"rate_limiter"`
}

// FsDeviceUpdate carries the runtime-updatable properties of an fs
// device: its rate limiters.
type FsDeviceUpdate struct {
	FsID        string       `json:"fs_id"`
	RateLimiter *RateLimiter `json:"rate_limiter"`
}

// FsMountConfig attaches or detaches a backend filesystem on a running
// fs device.
type FsMountConfig struct {
	FsID       string `json:"fs_id"`
	Op         string `json:"ops"`
	SourcePath string `json:"source_path"`
	MountPoint string `json:"mountpoint"`
}

type fsDevice struct {
	config   FsDeviceConfig
	backends map[string]FsMountConfig // keyed by mount point
}

// FsDeviceManager owns the shared filesystem devices of one VM.
type FsDeviceManager struct {
	log types.Logger

	mu      sync.Mutex
	devices map[string]*fsDevice
}

func NewFsDeviceManager(log types.Logger) *FsDeviceManager {
	return &FsDeviceManager{
		log:     log,
		devices: make(map[string]*fsDevice),
	}
}

// InsertDevice adds a filesystem device, or replaces the configuration
// of an existing fs id.
func (m *FsDeviceManager) InsertDevice(ctx vm.DeviceOpContext, config FsDeviceConfig) error {
	if config.FsID == "" {
		return errors.Join(ErrInvalidDeviceID, fmt.Errorf("empty fs id"))
	}
	if err := config.RateLimiter.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.log != nil {
		m.log.Debug().Str("fs", config.FsID).Bool("hotplug", ctx.Hotplug).Msg("inserting fs device")
	}
	if device, ok := m.devices[config.FsID]; ok {
		device.config = config
		return nil
	}
	m.devices[config.FsID] = &fsDevice{
		config:   config,
		backends: make(map[string]FsMountConfig),
	}
	return nil
}

// UpdateRateLimiters replaces the rate limiters of a running fs
// device.
func (m *FsDeviceManager) UpdateRateLimiters(update FsDeviceUpdate) error {
	if err := update.RateLimiter.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	device, ok := m.devices[update.FsID]
	if !ok {
		return errors.Join(ErrInvalidDeviceID, fmt.Errorf("fs %q", update.FsID))
	}
	device.config.RateLimiter = update.RateLimiter
	return nil
}

// ManipulateBackend attaches or detaches a backend filesystem on a
// running device.
func (m *FsDeviceManager) ManipulateBackend(config FsMountConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	device, ok := m.devices[config.FsID]
	if !ok {
		return errors.Join(ErrInvalidDeviceID, fmt.Errorf("fs %q", config.FsID))
	}

	switch config.Op {
	case FsMountOpAttach:
		if config.SourcePath == "" || config.MountPoint == "" {
			return errors.Join(ErrAttachBackendFailed, fmt.Errorf("source %q, mount point %q", config.SourcePath, config.MountPoint))
		}
		device.backends[config.MountPoint] = config
	case FsMountOpDetach:
		if _, ok := device.backends[config.MountPoint]; !ok {
			return errors.Join(ErrDetachBackendFailed, fmt.Errorf("no backend at mount point %q", config.MountPoint))
		}
		delete(device.backends, config.MountPoint)
	default:
		return errors.Join(ErrAttachBackendFailed, fmt.Errorf("unknown mount op %q", config.Op))
	}

	if m.log != nil {
		m.log.Debug().Str("fs", config.FsID).Str("op", config.Op).Str("mountpoint", config.MountPoint).Msg("manipulated fs backend")
	}
	return nil
}

// Device returns the stored configuration for an fs id.
func (m *FsDeviceManager) Device(fsID string) (FsDeviceConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	device, ok := m.devices[fsID]
	if !ok {
		return FsDeviceConfig{}, false
	}
	return device.config, true
}
