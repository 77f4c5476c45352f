//go:build unix

package vfs

import (
	"errors"

	"golang.org/x/sys/unix"
)

// probeExists uses access(2) so no stat buffer is filled for the probe.
func probeExists(name string) (bool, error) {
	err := unix.Access(name, unix.F_OK)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENOTDIR):
		return false, nil
	default:
		return false, err
	}
}
