// Package devices holds the per-class device managers the dispatcher
// delegates to. Each manager owns the configuration records of its
// class, keyed by a caller-supplied device id unique within the class.
package devices

import "errors"

// Class tags one device family. Which classes a VM carries is a
// runtime capability set, not a compile-time selection.
type Class string

const (
	ClassBlock Class = "virtio-blk"
	ClassNet   Class = "virtio-net"
	ClassFs    Class = "virtio-fs"
	ClassVsock Class = "virtio-vsock"
)

var (
	ErrUpdateNotAllowedPostBoot = errors.New("update operation is not allowed after boot")
	ErrMicroVMNotRunning        = errors.New("the microVM is not running")
	ErrInvalidDeviceID          = errors.New("invalid device id")
	ErrGuestCIDInvalid          = errors.New("the guest CID is invalid")
	ErrInvalidRateLimiter       = errors.New("invalid rate limiter configuration")
	ErrAttachBackendFailed      = errors.New("could not attach backend filesystem")
	ErrDetachBackendFailed      = errors.New("could not detach backend filesystem")
	ErrClassNotEnabled          = errors.New("device class is not enabled on this VM")
)
