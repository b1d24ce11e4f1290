//go:build !windows

package core

import (
	"errors"

	"golang.org/x/sys/unix"
)

var errWouldBlock = unix.EWOULDBLOCK

func flock(f interface{ Fd() uintptr }) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EAGAIN) {
		return errWouldBlock
	}
	return err
}

func funlock(f interface{ Fd() uintptr }) {
	unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
