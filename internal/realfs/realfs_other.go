//go:build unix && !linux

package realfs

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func (OS) Lstat(path string) (Stat, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return Stat{}, err
	}
	return Stat{
		Mode:  fi.Mode(),
		Nlink: 1,
		Size:  fi.Size(),
		Atime: fi.ModTime(),
		Mtime: fi.ModTime(),
		Ctime: fi.ModTime(),
	}, nil
}

func (OS) Access(path string, mode uint32) error {
	if err := unix.Access(path, mode); err != nil {
		return &os.PathError{Op: "access", Path: path, Err: err}
	}
	return nil
}

func (OS) Statfs(path string) (Statfs, error) {
	return Statfs{}, &os.PathError{Op: "statfs", Path: path, Err: errors.ErrUnsupported}
}
