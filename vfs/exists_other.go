//go:build !unix

package vfs

import (
	"errors"
	"io/fs"
	"os"
)

func probeExists(name string) (bool, error) {
	_, err := os.Lstat(name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
