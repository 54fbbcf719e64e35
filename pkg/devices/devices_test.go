package devices

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberhq/ember/pkg/vm"
)

func coldplugContext() vm.DeviceOpContext {
	return vm.DeviceOpContext{Token: "test", VMID: "vm-test"}
}

func TestBlockDeviceManager(t *testing.T) {
	manager := NewBlockDeviceManager(nil)

	err := manager.InsertDevice(coldplugContext(), BlockDeviceConfig{})
	assert.ErrorIs(t, err, ErrInvalidDeviceID)

	require.NoError(t, manager.InsertDevice(coldplugContext(), BlockDeviceConfig{
		DriveID:      "root",
		PathOnHost:   "/tmp/rootfs.ext4",
		IsRootDevice: true,
	}))

	// Same drive id replaces the configuration.
	require.NoError(t, manager.InsertDevice(coldplugContext(), BlockDeviceConfig{
		DriveID:    "root",
		PathOnHost: "/tmp/other.ext4",
	}))
	device, ok := manager.Device("root")
	require.True(t, ok)
	assert.Equal(t, "/tmp/other.ext4", device.PathOnHost)

	err = manager.UpdateRateLimiters(BlockDeviceUpdate{DriveID: "missing"})
	assert.ErrorIs(t, err, ErrInvalidDeviceID)

	require.NoError(t, manager.UpdateRateLimiters(BlockDeviceUpdate{
		DriveID:     "root",
		RateLimiter: &RateLimiter{Bandwidth: &TokenBucket{Size: 1 << 20, RefillTimeMillis: 100}},
	}))

	err = manager.RemoveDevice(coldplugContext(), "missing")
	assert.ErrorIs(t, err, ErrInvalidDeviceID)

	require.NoError(t, manager.RemoveDevice(coldplugContext(), "root"))
	_, ok = manager.Device("root")
	assert.False(t, ok)
}

func TestBlockDeviceRateLimiterValidation(t *testing.T) {
	manager := NewBlockDeviceManager(nil)

	err := manager.InsertDevice(coldplugContext(), BlockDeviceConfig{
		DriveID:     "root",
		RateLimiter: &RateLimiter{Bandwidth: &TokenBucket{Size: 0, RefillTimeMillis: 100}},
	})
	assert.ErrorIs(t, err, ErrInvalidRateLimiter)

	err = manager.InsertDevice(coldplugContext(), BlockDeviceConfig{
		DriveID:     "root",
		RateLimiter: &RateLimiter{Ops: &TokenBucket{Size: 100, RefillTimeMillis: 0}},
	})
	assert.ErrorIs(t, err, ErrInvalidRateLimiter)
}

func TestNetDeviceManager(t *testing.T) {
	manager := NewNetDeviceManager(nil)

	err := manager.InsertDevice(coldplugContext(), NetDeviceConfig{})
	assert.ErrorIs(t, err, ErrInvalidDeviceID)

	require.NoError(t, manager.InsertDevice(coldplugContext(), NetDeviceConfig{
		IfaceID:     "eth0",
		HostDevName: "tap0",
		GuestMAC:    "02:0e:d9:fd:68:3d",
	}))

	err = manager.UpdateRateLimiters(NetDeviceUpdate{IfaceID: "eth1"})
	assert.ErrorIs(t, err, ErrInvalidDeviceID)

	require.NoError(t, manager.UpdateRateLimiters(NetDeviceUpdate{
		IfaceID:       "eth0",
		RxRateLimiter: &RateLimiter{Ops: &TokenBucket{Size: 1000, RefillTimeMillis: 10}},
	}))
	device, ok := manager.Device("eth0")
	require.True(t, ok)
	assert.NotNil(t, device.RxRateLimiter)
	assert.Nil(t, device.TxRateLimiter)
}

func TestFsDeviceManager(t *testing.T) {
	manager := NewFsDeviceManager(nil)

	require.NoError(t, manager.InsertDevice(coldplugContext(), FsDeviceConfig{
		FsID: "shared",
		Tag:  "shared",
	}))

	err := manager.ManipulateBackend(FsMountConfig{FsID: "missing", Op: FsMountOpAttach})
	assert.ErrorIs(t, err, ErrInvalidDeviceID)

	err = manager.ManipulateBackend(FsMountConfig{FsID: "shared", Op: FsMountOpAttach})
	assert.ErrorIs(t, err, ErrAttachBackendFailed)

	require.NoError(t, manager.ManipulateBackend(FsMountConfig{
		FsID:       "shared",
		Op:         FsMountOpAttach,
		SourcePath: "/srv/data",
		MountPoint: "/mnt/data",
	}))

	err = manager.ManipulateBackend(FsMountConfig{FsID: "shared", Op: FsMountOpDetach, MountPoint: "/mnt/other"})
	assert.ErrorIs(t, err, ErrDetachBackendFailed)

	require.NoError(t, manager.ManipulateBackend(FsMountConfig{
		FsID:       "shared",
		Op:         FsMountOpDetach,
		MountPoint: "/mnt/data",
	}))

	err = manager.ManipulateBackend(FsMountConfig{FsID: "shared", Op: "remount"})
	assert.ErrorIs(t, err, ErrAttachBackendFailed)
}

func TestVsockDeviceManager(t *testing.T) {
	manager := NewVsockDeviceManager(nil)

	require.NoError(t, manager.InsertDevice(coldplugContext(), VsockDeviceConfig{
		VsockID:  "vsock0",
		GuestCID: 3,
	}))

	// A second device must not reuse the CID.
	err := manager.InsertDevice(coldplugContext(), VsockDeviceConfig{
		VsockID:  "vsock1",
		GuestCID: 3,
	})
	assert.ErrorIs(t, err, ErrGuestCIDInvalid)

	require.NoError(t, manager.InsertDevice(coldplugContext(), VsockDeviceConfig{
		VsockID:  "vsock1",
		GuestCID: 4,
	}))
}

func TestRegistryCapabilities(t *testing.T) {
	registry := NewRegistry(nil, ClassBlock, ClassVsock)

	assert.True(t, registry.Has(ClassBlock))
	assert.True(t, registry.Has(ClassVsock))
	assert.False(t, registry.Has(ClassNet))
	assert.False(t, registry.Has(ClassFs))

	_, err := registry.Block()
	assert.NoError(t, err)
	_, err = registry.Net()
	assert.ErrorIs(t, err, ErrClassNotEnabled)
	_, err = registry.Fs()
	assert.ErrorIs(t, err, ErrClassNotEnabled)

	full := NewRegistry(nil)
	for _, class := range AllClasses {
		assert.True(t, full.Has(class))
	}
}
