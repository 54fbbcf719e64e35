package vmm

import (
	"errors"
	"fmt"
	"os"

	"github.com/loopholelabs/logging/types"

	"github.com/emberhq/ember/pkg/devices"
	"github.com/emberhq/ember/pkg/vm"
	"github.com/emberhq/ember/pkg/vmconfig"
)

// CmdlineMaxSize bounds the guest kernel command line.
const CmdlineMaxSize = 0x10000

// DefaultKernelCmdline is used when the caller supplies no boot args.
const DefaultKernelCmdline = "console=ttyS0 reboot=k panic=1 pci=off"

// Service is the action dispatcher. It drains one action at a time
// from the bridge, validates it against the VM's lifecycle state and
// the configuration invariants, delegates to the VM accessor or the
// device managers, and always produces exactly one response.
//
// Processing is single-threaded: ProcessRequest must only run on the
// thread that also advances the VM's event loop.
type Service struct {
	log      types.Logger
	bridge   *Bridge
	registry *devices.Registry
	metrics  *Metrics

	machineConfig vmconfig.Config
}

func NewService(log types.Logger, bridge *Bridge, registry *devices.Registry, metrics *Metrics) *Service {
	return &Service{
		log:           log,
		bridge:        bridge,
		registry:      registry,
		metrics:       metrics,
		machineConfig: vmconfig.Default(),
	}
}

// ProcessRequest handles at most one pending action. An empty poll is
// a benign no-op. A disconnected producer is unrecoverable: the
// control plane has died while the VM may still be running, so the
// process terminates.
func (s *Service) ProcessRequest(v *vm.VM, em *vm.EventManager) {
	action, ok, closed := s.bridge.poll()
	if closed {
		panic("vmm: request channel disconnected, control plane is gone")
	}
	if !ok {
		if s.log != nil {
			s.log.Warn().Msg("spurious wakeup with no pending request")
		}
		return
	}

	if s.log != nil {
		s.log.Debug().Str("action", action.Name()).Msg("received vmm action")
	}

	response := s.dispatch(action, v, em)
	s.metrics.observe(action, response)

	if s.log != nil {
		if response.Ok() {
			s.log.Debug().Str("action", action.Name()).Msg("vmm action succeeded")
		} else {
			s.log.Debug().Str("action", action.Name()).Err(response.Err).Msg("vmm action failed")
		}
	}

	s.bridge.respond(response)
}

func (s *Service) dispatch(action Action, v *vm.VM, em *vm.EventManager) Response {
	switch a := action.(type) {
	case ConfigureBootSource:
		return s.configureBootSource(v, a.Config)
	case StartMicroVM:
		return s.startMicroVM(v, em)
	case ShutdownMicroVM:
		return s.shutdownMicroVM(em)
	case GetVMConfiguration:
		return configResponse(s.machineConfig)
	case SetVMConfiguration:
		return s.setVMConfiguration(v, a.Config)
	case InsertBlockDevice:
		return s.insertBlockDevice(v, em, a.Config)
	case UpdateBlockDevice:
		return s.updateBlockDevice(v, a.Update)
	case RemoveBlockDevice:
		return s.removeBlockDevice(v, em, a.DriveID)
	case InsertNetworkDevice:
		return s.insertNetworkDevice(v, em, a.Config)
	case UpdateNetworkInterface:
		return s.updateNetworkInterface(v, a.Update)
	case InsertFsDevice:
		return s.insertFsDevice(v, a.Config)
	case UpdateFsDevice:
		return s.updateFsDevice(v, a.Update)
	case ManipulateFsBackend:
		return s.manipulateFsBackend(v, a.Config)
	case InsertVsockDevice:
		return s.insertVsockDevice(v, a.Config)
	default:
		// The action set is closed; this is unreachable for values
		// built by this package.
		return errorResponse(fmt.Errorf("unknown action %q", action.Name()))
	}
}

func (s *Service) configureBootSource(v *vm.VM, config BootSourceConfig) Response {
	if v == nil {
		return errorResponse(ErrInvalidVMID)
	}
	if v.IsInitialized() {
		return errorResponse(errors.Join(ErrBootSource, ErrUpdateNotAllowedPostBoot))
	}

	kernelFile, err := os.Open(config.KernelPath)
	if err != nil {
		return errorResponse(errors.Join(ErrBootSource, ErrInvalidKernelPath, err))
	}

	var initrdFile *os.File
	if config.InitrdPath != "" {
		initrdFile, err = os.Open(config.InitrdPath)
		if err != nil {
			_ = kernelFile.Close()
			return errorResponse(errors.Join(ErrBootSource, ErrInvalidInitrdPath, err))
		}
	}

	bootArgs := config.BootArgs
	if bootArgs == "" {
		bootArgs = DefaultKernelCmdline
	}
	if len(bootArgs) > CmdlineMaxSize {
		_ = kernelFile.Close()
		if initrdFile != nil {
			_ = initrdFile.Close()
		}
		return errorResponse(errors.Join(ErrBootSource, ErrInvalidKernelCommandLine, fmt.Errorf("command line is %d bytes, maximum is %d", len(bootArgs), CmdlineMaxSize)))
	}

	v.SetKernelConfig(&vm.KernelConfig{
		KernelFile: kernelFile,
		InitrdFile: initrdFile,
		Cmdline:    bootArgs,
	})

	return emptyResponse()
}

func (s *Service) startMicroVM(v *vm.VM, em *vm.EventManager) Response {
	if v == nil {
		return errorResponse(ErrInvalidVMID)
	}
	if v.IsInitialized() {
		return errorResponse(errors.Join(ErrStartMicroVM, ErrMicroVMAlreadyRunning))
	}
	if v.KernelConfig() == nil {
		return errorResponse(errors.Join(ErrStartMicroVM, ErrMissingKernelConfig))
	}

	err := v.Boot(em)
	if err != nil {
		return errorResponse(errors.Join(ErrStartMicroVM, err))
	}

	return emptyResponse()
}

func (s *Service) shutdownMicroVM(em *vm.EventManager) Response {
	em.TriggerExit()
	return emptyResponse()
}

// setVMConfiguration validates the merged configuration into a
// complete candidate before anything is written back, so a failure
// leaves the previous configuration fully intact.
func (s *Service) setVMConfiguration(v *vm.VM, incoming vmconfig.Config) Response {
	if v == nil {
		return errorResponse(ErrInvalidVMID)
	}
	if v.IsInitialized() {
		return errorResponse(errors.Join(ErrMachineConfig, ErrUpdateNotAllowedPostBoot))
	}

	config := v.Config()

	if config.VCPUCount != incoming.VCPUCount {
		if incoming.VCPUCount == 0 {
			return errorResponse(errors.Join(ErrMachineConfig, vmconfig.ErrInvalidVCPUCount, fmt.Errorf("vcpu_count is 0")))
		}
		config.VCPUCount = incoming.VCPUCount
	}

	// A zero-valued topology means the caller supplied none; only a
	// real topology that differs from the stored one is validated.
	if !incoming.CPUTopology.IsZero() && config.CPUTopology != incoming.CPUTopology {
		_, err := vmconfig.ValidateTopology(incoming.CPUTopology, config.VCPUCount)
		if err != nil {
			return errorResponse(errors.Join(ErrMachineConfig, err))
		}
		config.CPUTopology = incoming.CPUTopology
	} else {
		config.CPUTopology = vmconfig.DefaultTopology(config.VCPUCount, incoming.MaxVCPUCount)
	}

	maxFromTopology, err := config.CPUTopology.VCPUCount()
	if err != nil {
		return errorResponse(errors.Join(ErrMachineConfig, err))
	}

	maxVCPUCount := incoming.MaxVCPUCount
	if maxVCPUCount < config.VCPUCount {
		return errorResponse(errors.Join(ErrMachineConfig, vmconfig.ErrInvalidMaxVCPUCount, fmt.Errorf("max_vcpu_count %d, vcpu_count %d", maxVCPUCount, config.VCPUCount)))
	}
	if maxFromTopology != maxVCPUCount {
		// The topology-derived value wins; informational only.
		if s.log != nil {
			s.log.Info().Uint64("max_vcpu_count", uint64(maxVCPUCount)).Uint64("from_topology", uint64(maxFromTopology)).Msg("max vCPU count does not match the CPU topology, using the topology-derived value")
		}
		maxVCPUCount = maxFromTopology
	}
	config.MaxVCPUCount = maxVCPUCount

	config.CPUPM = incoming.CPUPM
	config.MemType = incoming.MemType
	if config.MemType == "" {
		config.MemType = vmconfig.MemTypeShmem
	}

	err = vmconfig.ValidateMemSize(incoming.MemSizeMiB)
	if err != nil {
		return errorResponse(errors.Join(ErrMachineConfig, err))
	}
	config.MemSizeMiB = incoming.MemSizeMiB

	config.MemFilePath = incoming.MemFilePath
	if config.MemType == vmconfig.MemTypeHugetlbfs && config.MemFilePath == "" {
		return errorResponse(errors.Join(ErrMachineConfig, vmconfig.ErrInvalidMemFilePath, fmt.Errorf("hugetlbfs backing requires a memory file path")))
	}

	config.VPMUFeature = incoming.VPMUFeature

	switch {
	case incoming.SerialPath != "":
		config.SerialPath = incoming.SerialPath
	case config.SerialPath == "":
		config.SerialPath = v.DefaultSerialPath()
	}

	v.SetConfig(config)
	s.machineConfig = config

	return emptyResponse()
}

func (s *Service) insertBlockDevice(v *vm.VM, em *vm.EventManager, config devices.BlockDeviceConfig) Response {
	if v == nil {
		return errorResponse(ErrInvalidVMID)
	}
	manager, err := s.registry.Block()
	if err != nil {
		return errorResponse(errors.Join(ErrBlockDevice, err))
	}

	ctx, err := v.CreateDeviceOpContext(em.EpollManager())
	if err != nil {
		if errors.Is(err, vm.ErrUpcallNotReady) {
			return errorResponse(ErrUpcallNotReady)
		}
		return errorResponse(errors.Join(ErrBlockDevice, devices.ErrUpdateNotAllowedPostBoot))
	}

	err = manager.InsertDevice(ctx, config)
	if err != nil {
		return errorResponse(errors.Join(ErrBlockDevice, err))
	}
	return emptyResponse()
}

func (s *Service) updateBlockDevice(v *vm.VM, update devices.BlockDeviceUpdate) Response {
	if v == nil {
		return errorResponse(ErrInvalidVMID)
	}
	manager, err := s.registry.Block()
	if err != nil {
		return errorResponse(errors.Join(ErrBlockDevice, err))
	}

	// Rate limiters only exist on a running device.
	if !v.IsInitialized() {
		return errorResponse(errors.Join(ErrBlockDevice, devices.ErrMicroVMNotRunning))
	}

	err = manager.UpdateRateLimiters(update)
	if err != nil {
		return errorResponse(errors.Join(ErrBlockDevice, err))
	}
	return emptyResponse()
}

func (s *Service) removeBlockDevice(v *vm.VM, em *vm.EventManager, driveID string) Response {
	if v == nil {
		return errorResponse(ErrInvalidVMID)
	}
	manager, err := s.registry.Block()
	if err != nil {
		return errorResponse(errors.Join(ErrBlockDevice, err))
	}

	ctx, err := v.CreateDeviceOpContext(em.EpollManager())
	if err != nil {
		if errors.Is(err, vm.ErrUpcallNotReady) {
			return errorResponse(ErrUpcallNotReady)
		}
		return errorResponse(errors.Join(ErrBlockDevice, devices.ErrUpdateNotAllowedPostBoot))
	}

	err = manager.RemoveDevice(ctx, driveID)
	if err != nil {
		return errorResponse(errors.Join(ErrBlockDevice, err))
	}
	return emptyResponse()
}

func (s *Service) insertNetworkDevice(v *vm.VM, em *vm.EventManager, config devices.NetDeviceConfig) Response {
	if v == nil {
		return errorResponse(ErrInvalidVMID)
	}
	manager, err := s.registry.Net()
	if err != nil {
		return errorResponse(errors.Join(ErrNetDevice, err))
	}

	ctx, err := v.CreateDeviceOpContext(em.EpollManager())
	if err != nil {
		switch {
		case errors.Is(err, vm.ErrMicroVMAlreadyRunning):
			return errorResponse(errors.Join(ErrNetDevice, devices.ErrUpdateNotAllowedPostBoot))
		case errors.Is(err, vm.ErrUpcallNotReady):
			return errorResponse(ErrUpcallNotReady)
		default:
			return errorResponse(errors.Join(ErrStartMicroVM, err))
		}
	}

	err = manager.InsertDevice(ctx, config)
	if err != nil {
		return errorResponse(errors.Join(ErrNetDevice, err))
	}
	return emptyResponse()
}

func (s *Service) updateNetworkInterface(v *vm.VM, update devices.NetDeviceUpdate) Response {
	if v == nil {
		return errorResponse(ErrInvalidVMID)
	}
	manager, err := s.registry.Net()
	if err != nil {
		return errorResponse(errors.Join(ErrNetDevice, err))
	}

	if !v.IsInitialized() {
		return errorResponse(errors.Join(ErrNetDevice, devices.ErrMicroVMNotRunning))
	}

	err = manager.UpdateRateLimiters(update)
	if err != nil {
		return errorResponse(errors.Join(ErrNetDevice, err))
	}
	return emptyResponse()
}

func (s *Service) insertFsDevice(v *vm.VM, config devices.FsDeviceConfig) Response {
	if v == nil {
		return errorResponse(ErrInvalidVMID)
	}
	manager, err := s.registry.Fs()
	if err != nil {
		return errorResponse(errors.Join(ErrFsDevice, err))
	}

	ctx, err := v.CreateDeviceOpContext(nil)
	if err != nil {
		return errorResponse(errors.Join(ErrFsDevice, devices.ErrUpdateNotAllowedPostBoot))
	}

	err = manager.InsertDevice(ctx, config)
	if err != nil {
		return errorResponse(errors.Join(ErrFsDevice, err))
	}
	return emptyResponse()
}

func (s *Service) updateFsDevice(v *vm.VM, update devices.FsDeviceUpdate) Response {
	if v == nil {
		return errorResponse(ErrInvalidVMID)
	}
	manager, err := s.registry.Fs()
	if err != nil {
		return errorResponse(errors.Join(ErrFsDevice, err))
	}

	if !v.IsInitialized() {
		return errorResponse(errors.Join(ErrFsDevice, devices.ErrMicroVMNotRunning))
	}

	err = manager.UpdateRateLimiters(update)
	if err != nil {
		return errorResponse(errors.Join(ErrFsDevice, err))
	}
	return emptyResponse()
}

func (s *Service) manipulateFsBackend(v *vm.VM, config devices.FsMountConfig) Response {
	if v == nil {
		return errorResponse(ErrInvalidVMID)
	}
	manager, err := s.registry.Fs()
	if err != nil {
		return errorResponse(errors.Join(ErrFsDevice, err))
	}

	// Backend manipulation only makes sense against a running device.
	if !v.IsInitialized() {
		return errorResponse(errors.Join(ErrFsDevice, devices.ErrMicroVMNotRunning))
	}

	err = manager.ManipulateBackend(config)
	if err != nil {
		return errorResponse(errors.Join(ErrFsDevice, err))
	}
	return emptyResponse()
}

func (s *Service) insertVsockDevice(v *vm.VM, config devices.VsockDeviceConfig) Response {
	if v == nil {
		return errorResponse(ErrInvalidVMID)
	}
	manager, err := s.registry.Vsock()
	if err != nil {
		return errorResponse(errors.Join(ErrVsockDevice, err))
	}

	if v.IsInitialized() {
		return errorResponse(errors.Join(ErrVsockDevice, devices.ErrUpdateNotAllowedPostBoot))
	}

	// CIDs 0-2 are reserved (hypervisor, loopback, host). Reject them
	// before any hot-plug machinery is allocated.
	if config.GuestCID <= 2 {
		return errorResponse(errors.Join(ErrVsockDevice, devices.ErrGuestCIDInvalid, fmt.Errorf("guest CID %d is reserved", config.GuestCID)))
	}

	ctx, err := v.CreateDeviceOpContext(nil)
	if err != nil {
		return errorResponse(errors.Join(ErrVsockDevice, devices.ErrUpdateNotAllowedPostBoot))
	}

	err = manager.InsertDevice(ctx, config)
	if err != nil {
		return errorResponse(errors.Join(ErrVsockDevice, err))
	}
	return emptyResponse()
}
