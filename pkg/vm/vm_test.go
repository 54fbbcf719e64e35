package vm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberhq/ember/pkg/vmconfig"
)

type bootRecorder struct {
	booted bool
	err    error
}

func (b *bootRecorder) Boot(kernel *KernelConfig, config vmconfig.Config, em *EventManager, filters SeccompFilters) error {
	b.booted = true
	return b.err
}

func TestDeviceOpContextBeforeBoot(t *testing.T) {
	machine := NewVM(nil, &bootRecorder{}, SeccompFilters{})

	ctx, err := machine.CreateDeviceOpContext(nil)
	require.NoError(t, err)
	assert.False(t, ctx.Hotplug)
	assert.Equal(t, machine.ID(), ctx.VMID)
	assert.NotEmpty(t, ctx.Token)

	// The epoll handle makes no difference before boot.
	em := NewEventManager(nil)
	ctx, err = machine.CreateDeviceOpContext(em.EpollManager())
	require.NoError(t, err)
	assert.False(t, ctx.Hotplug)
}

func TestDeviceOpContextPostBoot(t *testing.T) {
	machine := NewVM(nil, &bootRecorder{}, SeccompFilters{})
	machine.SetInstanceState(StateRunning)
	em := NewEventManager(nil)

	// No epoll handle: plain post-boot rejection.
	_, err := machine.CreateDeviceOpContext(nil)
	assert.ErrorIs(t, err, ErrMicroVMAlreadyRunning)

	// Epoll handle but no upcall: hot-plug machinery unavailable.
	_, err = machine.CreateDeviceOpContext(em.EpollManager())
	assert.ErrorIs(t, err, ErrUpcallNotReady)

	machine.SetUpcallReady(true)
	ctx, err := machine.CreateDeviceOpContext(em.EpollManager())
	require.NoError(t, err)
	assert.True(t, ctx.Hotplug)
	assert.NotNil(t, ctx.Epoll)

	// Classes without event sources hot-plug without the epoll handle.
	ctx, err = machine.CreateDeviceOpContext(nil)
	require.NoError(t, err)
	assert.True(t, ctx.Hotplug)
	assert.Nil(t, ctx.Epoll)
}

func TestBootTransitions(t *testing.T) {
	recorder := &bootRecorder{}
	machine := NewVM(nil, recorder, SeccompFilters{})
	em := NewEventManager(nil)

	require.NoError(t, machine.Boot(em))
	assert.True(t, recorder.booted)
	assert.Equal(t, StateRunning, machine.InstanceInfo().State)
	assert.True(t, machine.IsInitialized())
}

func TestBootFailure(t *testing.T) {
	bootErr := errors.New("no KVM")
	machine := NewVM(nil, &bootRecorder{err: bootErr}, SeccompFilters{})
	em := NewEventManager(nil)

	err := machine.Boot(em)
	assert.ErrorIs(t, err, ErrCouldNotBootVM)
	assert.ErrorIs(t, err, bootErr)
	assert.Equal(t, StateFailed, machine.InstanceInfo().State)
}

func TestDefaultSerialPath(t *testing.T) {
	machine := NewVM(nil, &bootRecorder{}, SeccompFilters{})
	assert.Equal(t, RunDir+"/"+machine.ID()+"_com1", machine.DefaultSerialPath())
}

func TestEventManagerExit(t *testing.T) {
	em := NewEventManager(nil)
	assert.False(t, em.ExitTriggered())

	em.TriggerExit()
	assert.True(t, em.ExitTriggered())
}
