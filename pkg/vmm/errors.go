package vmm

import "errors"

// Top-level action errors. Every failed action response carries
// exactly one of these as its leading cause, so callers can name the
// failing subsystem with errors.Is before digging into the reason
// joined behind it.
var (
	// ErrInvalidVMID: the dispatcher was asked to act on a VM instance
	// that does not exist.
	ErrInvalidVMID = errors.New("the virtual machine instance ID is invalid")

	// ErrUpcallNotReady: hot-plug infrastructure is unavailable. Kept
	// distinct from ordinary post-boot rejection.
	ErrUpcallNotReady = errors.New("upcall not ready, cannot hotplug device")

	ErrBootSource    = errors.New("failed to configure boot source for VM")
	ErrStartMicroVM  = errors.New("failed to boot the VM")
	ErrStopMicroVM   = errors.New("failed to shutdown the VM")
	ErrMachineConfig = errors.New("failed to set configuration for the VM")

	ErrBlockDevice = errors.New("virtio-blk device error")
	ErrNetDevice   = errors.New("virtio-net device error")
	ErrFsDevice    = errors.New("virtio-fs device error")
	ErrVsockDevice = errors.New("virtio-vsock device error")
)

// Boot-source and start reasons joined behind the subsystem errors
// above.
var (
	ErrUpdateNotAllowedPostBoot = errors.New("the update operation is not allowed after boot")
	ErrInvalidKernelPath        = errors.New("the kernel file cannot be opened due to invalid kernel path or invalid permissions")
	ErrInvalidInitrdPath        = errors.New("the initrd file cannot be opened due to invalid initrd path or invalid permissions")
	ErrInvalidKernelCommandLine = errors.New("the kernel command line is invalid")
	ErrMicroVMAlreadyRunning    = errors.New("the virtual machine is already running")
	ErrMissingKernelConfig      = errors.New("cannot start the virtual machine without kernel configuration")
)
