package vm

import (
	"errors"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/loopholelabs/logging/types"

	"github.com/emberhq/ember/pkg/vmconfig"
)

var (
	ErrMicroVMAlreadyRunning = errors.New("the microVM is already running")
	ErrUpcallNotReady        = errors.New("upcall channel is not ready")
	ErrCouldNotBootVM        = errors.New("could not boot the microVM")
)

// RunDir is where per-instance runtime files live.
const RunDir = "/run/ember"

// SeccompFilters is the opaque filter material the hypervisor core
// applies to its VMM and vCPU threads. Filter construction is not this
// module's concern.
type SeccompFilters struct {
	VMM  []byte
	VCPU []byte
}

// Hypervisor is the execution core that boots and runs guest vCPUs.
// It is an external collaborator consumed only through this interface.
type Hypervisor interface {
	Boot(kernel *KernelConfig, config vmconfig.Config, em *EventManager, filters SeccompFilters) error
}

// DeviceOpContext is the scoped capability required to mutate device
// configuration. It is produced per operation by CreateDeviceOpContext
// and never stored.
type DeviceOpContext struct {
	Token   string
	VMID    string
	Hotplug bool
	Epoll   *EpollManager
	Logger  types.Logger
}

// VM is the accessor for one microVM instance: lifecycle state,
// machine configuration, boot source and device-operation contexts.
type VM struct {
	log types.Logger

	info    InstanceInfo
	config  vmconfig.Config
	kernel  *KernelConfig
	filters SeccompFilters

	hypervisor  Hypervisor
	upcallReady bool
}

func NewVM(log types.Logger, hypervisor Hypervisor, filters SeccompFilters) *VM {
	return &VM{
		log: log,
		info: InstanceInfo{
			ID:    uuid.NewString(),
			State: StateUninitialized,
		},
		config:     vmconfig.Default(),
		filters:    filters,
		hypervisor: hypervisor,
	}
}

func (vm *VM) ID() string {
	return vm.info.ID
}

func (vm *VM) InstanceInfo() InstanceInfo {
	return vm.info
}

func (vm *VM) SetInstanceState(state InstanceState) {
	vm.info.State = state
}

// IsInitialized reports whether the VM has left the uninitialized
// state. Most configuration actions are only admissible before that.
func (vm *VM) IsInitialized() bool {
	return vm.info.State != StateUninitialized
}

func (vm *VM) Config() vmconfig.Config {
	return vm.config
}

func (vm *VM) SetConfig(config vmconfig.Config) {
	vm.config = config
}

func (vm *VM) KernelConfig() *KernelConfig {
	return vm.kernel
}

func (vm *VM) SetKernelConfig(kernel *KernelConfig) {
	if vm.kernel != nil {
		_ = vm.kernel.Close()
	}
	vm.kernel = kernel
}

// SetUpcallReady marks the hot-plug upcall channel usable. The channel
// itself is guest-side infrastructure owned outside this module.
func (vm *VM) SetUpcallReady(ready bool) {
	vm.upcallReady = ready
}

// DefaultSerialPath derives the deterministic per-instance serial
// console path used when the configuration supplies none.
func (vm *VM) DefaultSerialPath() string {
	return RunDir + "/" + vm.info.ID + "_com1"
}

// CreateDeviceOpContext returns a scoped context for one device
// mutation. Before boot any caller gets a cold-plug context. After
// boot a hot-plug context requires the upcall channel to be ready;
// the epoll handle is only needed by device classes that register
// event sources, and its absence shapes the rejection a caller sees
// when the upcall is not ready.
func (vm *VM) CreateDeviceOpContext(epoll *EpollManager) (DeviceOpContext, error) {
	if !vm.IsInitialized() {
		return DeviceOpContext{
			Token:  shortuuid.New(),
			VMID:   vm.info.ID,
			Logger: vm.log,
		}, nil
	}

	if !vm.upcallReady {
		if epoll == nil {
			return DeviceOpContext{}, ErrMicroVMAlreadyRunning
		}
		return DeviceOpContext{}, ErrUpcallNotReady
	}

	return DeviceOpContext{
		Token:   shortuuid.New(),
		VMID:    vm.info.ID,
		Hotplug: true,
		Epoll:   epoll,
		Logger:  vm.log,
	}, nil
}

// Boot hands the installed boot source and configuration to the
// hypervisor core and transitions the instance to running.
func (vm *VM) Boot(em *EventManager) error {
	vm.SetInstanceState(StateStarting)

	err := vm.hypervisor.Boot(vm.kernel, vm.config, em, vm.filters)
	if err != nil {
		vm.SetInstanceState(StateFailed)
		return errors.Join(ErrCouldNotBootVM, err)
	}

	vm.SetInstanceState(StateRunning)
	if vm.log != nil {
		vm.log.Info().Str("id", vm.info.ID).Msg("microVM booted")
	}
	return nil
}
