package vm

import "os"

// KernelConfig holds the boot source installed on a VM: the opened
// kernel and optional initrd files plus the guest command line.
type KernelConfig struct {
	KernelFile *os.File
	InitrdFile *os.File
	Cmdline    string
}

// Close releases the boot source file handles.
func (k *KernelConfig) Close() error {
	var err error
	if k.KernelFile != nil {
		err = k.KernelFile.Close()
	}
	if k.InitrdFile != nil {
		if cerr := k.InitrdFile.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
