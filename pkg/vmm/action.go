package vmm

import (
	"github.com/emberhq/ember/pkg/devices"
	"github.com/emberhq/ember/pkg/vmconfig"
)

// Action is one discrete control-plane command targeting one VM. The
// set of actions is closed: the dispatcher switches over every
// variant and an unknown variant is a programming error.
type Action interface {
	// Name identifies the action in logs and metrics.
	Name() string

	isAction()
}

// BootSourceConfig selects the guest kernel, optional initrd and
// command line.
type BootSourceConfig struct {
	KernelPath string `json:"kernel_path"`
	InitrdPath string `json:"initrd_path"`
	BootArgs   string `json:"boot_args"`
}

// ConfigureBootSource installs the boot source on the VM. Pre-boot
// only.
type ConfigureBootSource struct {
	Config BootSourceConfig
}

// StartMicroVM launches the microVM. Pre-boot only.
type StartMicroVM struct{}

// ShutdownMicroVM signals the VM's exit condition. It never waits for
// teardown.
type ShutdownMicroVM struct{}

// GetVMConfiguration returns a snapshot of the last successfully
// applied machine configuration.
type GetVMConfiguration struct{}

// SetVMConfiguration validates and applies a machine configuration.
// Pre-boot only.
type SetVMConfiguration struct {
	Config vmconfig.Config
}

// InsertBlockDevice adds a block device, or updates an existing drive
// id. Hot-plug capable.
type InsertBlockDevice struct {
	Config devices.BlockDeviceConfig
}

// UpdateBlockDevice updates the rate limiters of a block device on a
// running VM.
type UpdateBlockDevice struct {
	Update devices.BlockDeviceUpdate
}

// RemoveBlockDevice detaches a block device by drive id. Hot-plug
// capable.
type RemoveBlockDevice struct {
	DriveID string
}

// InsertNetworkDevice adds a network interface, or updates an existing
// iface id. Hot-plug capable.
type InsertNetworkDevice struct {
	Config devices.NetDeviceConfig
}

// UpdateNetworkInterface updates the RX/TX rate limiters of a network
// interface on a running VM.
type UpdateNetworkInterface struct {
	Update devices.NetDeviceUpdate
}

// InsertFsDevice adds a shared filesystem device, or updates an
// existing fs id.
type InsertFsDevice struct {
	Config devices.FsDeviceConfig
}

// UpdateFsDevice updates the rate limiters of an fs device on a
// running VM.
type UpdateFsDevice struct {
	Update devices.FsDeviceUpdate
}

// ManipulateFsBackend attaches or detaches a backend filesystem on a
// running fs device.
type ManipulateFsBackend struct {
	Config devices.FsMountConfig
}

// InsertVsockDevice adds a vsock device. Pre-boot only.
type InsertVsockDevice struct {
	Config devices.VsockDeviceConfig
}

func (ConfigureBootSource) Name() string    { return "ConfigureBootSource" }
func (StartMicroVM) Name() string           { return "StartMicroVM" }
func (ShutdownMicroVM) Name() string        { return "ShutdownMicroVM" }
func (GetVMConfiguration) Name() string     { return "GetVMConfiguration" }
func (SetVMConfiguration) Name() string     { return "SetVMConfiguration" }
func (InsertBlockDevice) Name() string      { return "InsertBlockDevice" }
func (UpdateBlockDevice) Name() string      { return "UpdateBlockDevice" }
func (RemoveBlockDevice) Name() string      { return "RemoveBlockDevice" }
func (InsertNetworkDevice) Name() string    { return "InsertNetworkDevice" }
func (UpdateNetworkInterface) Name() string { return "UpdateNetworkInterface" }
func (InsertFsDevice) Name() string         { return "InsertFsDevice" }
func (UpdateFsDevice) Name() string         { return "UpdateFsDevice" }
func (ManipulateFsBackend) Name() string    { return "ManipulateFsBackend" }
func (InsertVsockDevice) Name() string      { return "InsertVsockDevice" }

func (ConfigureBootSource) isAction()    {}
func (StartMicroVM) isAction()           {}
func (ShutdownMicroVM) isAction()        {}
func (GetVMConfiguration) isAction()     {}
func (SetVMConfiguration) isAction()     {}
func (InsertBlockDevice) isAction()      {}
func (UpdateBlockDevice) isAction()      {}
func (RemoveBlockDevice) isAction()      {}
func (InsertNetworkDevice) isAction()    {}
func (UpdateNetworkInterface) isAction() {}
func (InsertFsDevice) isAction()         {}
func (UpdateFsDevice) isAction()         {}
func (ManipulateFsBackend) isAction()    {}
func (InsertVsockDevice) isAction()      {}
