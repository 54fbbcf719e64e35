package devices

import (
	"errors"
	"fmt"
	"sync"

	"github.com/loopholelabs/logging/types"

	"github.com/emberhq/ember/pkg/vm"
)

// VsockDeviceConfig describes one virtio-vsock device. The guest CID
// is the addressing identity of the guest on the vsock fabric.
type VsockDeviceConfig struct {
	VsockID  string `json:"vsock_id"`
	GuestCID uint32 `json:"guest_cid"`
	UDSPath  string `json:"uds_path"`
}

// VsockDeviceManager owns the vsock devices of one VM.
type VsockDeviceManager struct {
	log types.Logger

	mu      sync.Mutex
	devices map[string]VsockDeviceConfig
}

func NewVsockDeviceManager(log types.Logger) *VsockDeviceManager {
	return &VsockDeviceManager{
		log:     log,
		devices: make(map[string]VsockDeviceConfig),
	}
}

// InsertDevice adds a vsock device, or replaces the configuration of
// an existing vsock id.
func (m *VsockDeviceManager) InsertDevice(ctx vm.DeviceOpContext, config VsockDeviceConfig) error {
	if config.VsockID == "" {
		return errors.Join(ErrInvalidDeviceID, fmt.Errorf("empty vsock id"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, device := range m.devices {
		if id != config.VsockID && device.GuestCID == config.GuestCID {
			return errors.Join(ErrGuestCIDInvalid, fmt.Errorf("guest CID %d already in use by %q", config.GuestCID, id))
		}
	}

	if m.log != nil {
		m.log.Debug().Str("vsock", config.VsockID).Uint64("cid", uint64(config.GuestCID)).Msg("inserting vsock device")
	}
	m.devices[config.VsockID] = config
	return nil
}

// Device returns the stored configuration for a vsock id.
func (m *VsockDeviceManager) Device(vsockID string) (VsockDeviceConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	device, ok := m.devices[vsockID]
	return device, ok
}
