package devices

import (
	"errors"
	"fmt"
	"sync"

	"github.com/loopholelabs/logging/types"

	"github.com/emberhq/ember/pkg/vm"
)

// NetDeviceConfig describes one virtio-net device backed by a host tap
// interface.
type NetDeviceConfig struct {
	IfaceID       string       `json:"iface_id"`
	HostDevName   string       `json:"host_dev_name"`
	GuestMAC      string       `json:"guest_mac"`
	NumQueues     uint16       `json:"num_queues"`
	QueueSize     uint16       `json:"queue_size"`
	RxRateLimiter *RateLimiter `json:"rx_rate_limiter"`
	TxRateLimiter *RateLimiter `json:"tx_rate_limiter"`
}

// NetDeviceUpdate carries the runtime-updatable properties of a net
// device: its RX and TX rate limiters.
type NetDeviceUpdate struct {
	IfaceID       string       `json:"iface_id"`
	RxRateLimiter *RateLimiter `json:"rx_rate_limiter"`
	TxRateLimiter *RateLimiter `json:"tx_rate_limiter"`
}

// NetDeviceManager owns the network interfaces of one VM.
type NetDeviceManager struct {
	log types.Logger

	mu      sync.Mutex
	devices map[string]NetDeviceConfig
}

func NewNetDeviceManager(log types.Logger) *NetDeviceManager {
	return &NetDeviceManager{
		log:     log,
		devices: make(map[string]NetDeviceConfig),
	}
}

// InsertDevice adds a network interface, or replaces the configuration
// of an existing iface id.
func (m *NetDeviceManager) InsertDevice(ctx vm.DeviceOpContext, config NetDeviceConfig) error {
	if config.IfaceID == "" {
		return errors.Join(ErrInvalidDeviceID, fmt.Errorf("empty iface id"))
	}
	if err := config.RxRateLimiter.Validate(); err != nil {
		return err
	}
	if err := config.TxRateLimiter.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.log != nil {
		m.log.Debug().Str("iface", config.IfaceID).Bool("hotplug", ctx.Hotplug).Msg("inserting net device")
	}
	m.devices[config.IfaceID] = config
	return nil
}

// UpdateRateLimiters replaces the RX/TX rate limiters of a running
// interface.
func (m *NetDeviceManager) UpdateRateLimiters(update NetDeviceUpdate) error {
	if err := update.RxRateLimiter.Validate(); err != nil {
		return err
	}
	if err := update.TxRateLimiter.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	device, ok := m.devices[update.IfaceID]
	if !ok {
		return errors.Join(ErrInvalidDeviceID, fmt.Errorf("iface %q", update.IfaceID))
	}
	device.RxRateLimiter = update.RxRateLimiter
	device.TxRateLimiter = update.TxRateLimiter
	m.devices[update.IfaceID] = device
	return nil
}

// Device returns the stored configuration for an iface id.
func (m *NetDeviceManager) Device(ifaceID string) (NetDeviceConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	device, ok := m.devices[ifaceID]
	return device, ok
}
