// Package fs provides thin, direct wrappers over the mount and umount2
// syscalls used to give each sandboxed invocation its own tmpfs.
//
// Each exported function checks whether its target is a mount point, then
// issues exactly one mount or umount2 syscall, and is safe to call
// concurrently from multiple goroutines: every call owns its own syscall,
// and the kernel itself serializes mount-point collisions.
package fs

import (
	"fmt"
	"strings"

	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"
)

// Size is a byte-count multiplier, mirroring the KiB/MiB/GiB/TiB enum that
// snekbox's filesystem primitives expose to callers building mount options.
type Size int64

const (
	KiB Size = 1024
	MiB Size = KiB * 1024
	GiB Size = MiB * 1024
	TiB Size = GiB * 1024
)

// UnmountFlags mirrors the umount2(2) flag bits. Values must match the
// kernel ABI, so they are defined directly from golang.org/x/sys/unix
// rather than renumbered.
type UnmountFlags int

const (
	MNTForce      UnmountFlags = unix.MNT_FORCE
	MNTDetach     UnmountFlags = unix.MNT_DETACH
	MNTExpire     UnmountFlags = unix.MNT_EXPIRE
	UmountNoFollow UnmountFlags = unix.UMOUNT_NOFOLLOW
)

// MountError wraps a failed mount(2) call, preserving the underlying errno.
type MountError struct {
	Target string
	Err    error
}

func (e *MountError) Error() string {
	return fmt.Sprintf("error mounting %s: %s", e.Target, e.Err)
}

func (e *MountError) Unwrap() error { return e.Err }

// UnmountError wraps a failed umount2(2) call, preserving the underlying errno.
type UnmountError struct {
	Target string
	Err    error
}

func (e *UnmountError) Error() string {
	return fmt.Sprintf("error unmounting %s: %s", e.Target, e.Err)
}

func (e *UnmountError) Unwrap() error { return e.Err }

// Mount mounts a filesystem of type fstype at target, with the given
// source and comma-joined key=value options (e.g. Mount("", dir, "tmpfs",
// map[string]string{"size": "1048576"})).
//
// Mount fails if target is already a mount point.
func Mount(source, target, fstype string, options map[string]string) error {
	if mounted, err := mountinfo.Mounted(target); err != nil {
		return &MountError{Target: target, Err: err}
	} else if mounted {
		return &MountError{Target: target, Err: fmt.Errorf("%s is already a mount point", target)}
	}

	opts := make([]string, 0, len(options))
	for k, v := range options {
		opts = append(opts, fmt.Sprintf("%s=%s", k, v))
	}

	if err := unix.Mount(source, target, fstype, 0, strings.Join(opts, ",")); err != nil {
		return &MountError{Target: target, Err: err}
	}
	return nil
}

// Unmount detaches the filesystem mounted at target. It fails if target is
// not currently a mount point.
func Unmount(target string, flags UnmountFlags) error {
	if mounted, err := mountinfo.Mounted(target); err != nil {
		return &UnmountError{Target: target, Err: err}
	} else if !mounted {
		return &UnmountError{Target: target, Err: fmt.Errorf("%s is not a mount point", target)}
	}

	if err := unix.Unmount(target, int(flags)); err != nil {
		return &UnmountError{Target: target, Err: err}
	}
	return nil
}
