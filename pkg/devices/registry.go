package devices

import (
	"errors"
	"fmt"

	"github.com/loopholelabs/logging/types"
)

// Registry is the runtime capability set of device classes available
// to one VM. The dispatcher resolves handlers through it instead of
// hardcoding which classes exist.
type Registry struct {
	block *BlockDeviceManager
	net   *NetDeviceManager
	fs    *FsDeviceManager
	vsock *VsockDeviceManager
}

// AllClasses lists every device class this build knows about.
var AllClasses = []Class{ClassBlock, ClassNet, ClassFs, ClassVsock}

// NewRegistry builds managers for the given classes. With no classes
// given, every known class is enabled.
func NewRegistry(log types.Logger, classes ...Class) *Registry {
	if len(classes) == 0 {
		classes = AllClasses
	}

	registry := &Registry{}
	for _, class := range classes {
		switch class {
		case ClassBlock:
			registry.block = NewBlockDeviceManager(log)
		case ClassNet:
			registry.net = NewNetDeviceManager(log)
		case ClassFs:
			registry.fs = NewFsDeviceManager(log)
		case ClassVsock:
			registry.vsock = NewVsockDeviceManager(log)
		}
	}
	return registry
}

// Has reports whether a class is enabled.
func (r *Registry) Has(class Class) bool {
	switch class {
	case ClassBlock:
		return r.block != nil
	case ClassNet:
		return r.net != nil
	case ClassFs:
		return r.fs != nil
	case ClassVsock:
		return r.vsock != nil
	default:
		return false
	}
}

func (r *Registry) Block() (*BlockDeviceManager, error) {
	if r.block == nil {
		return nil, errors.Join(ErrClassNotEnabled, fmt.Errorf("class %q", ClassBlock))
	}
	return r.block, nil
}

func (r *Registry) Net() (*NetDeviceManager, error) {
	if r.net == nil {
		return nil, errors.Join(ErrClassNotEnabled, fmt.Errorf("class %q", ClassNet))
	}
	return r.net, nil
}

func (r *Registry) Fs() (*FsDeviceManager, error) {
	if r.fs == nil {
		return nil, errors.Join(ErrClassNotEnabled, fmt.Errorf("class %q", ClassFs))
	}
	return r.fs, nil
}

func (r *Registry) Vsock() (*VsockDeviceManager, error) {
	if r.vsock == nil {
		return nil, errors.Join(ErrClassNotEnabled, fmt.Errorf("class %q", ClassVsock))
	}
	return r.vsock, nil
}
