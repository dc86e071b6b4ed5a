// Package realfs is the pass-through side of the filesystem: plain stat,
// access, open, readdir and statfs against the host.
package realfs

import (
	"io"
	"os"
	"time"
)

// Stat is the subset of a host stat record the filesystem reports.
type Stat struct {
	Inode uint64
	Mode  os.FileMode
	Nlink uint32
	Uid   uint32
	Gid   uint32
	Size  int64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// Statfs is a host volume statistics record.
type Statfs struct {
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Bsize   uint32
	Frsize  uint32
	Namelen uint32
}

// File is an open host file. Reads are positional.
type File interface {
	io.ReaderAt
	io.Closer
}

// FS is the host filesystem as the core sees it.
type FS interface {
	Lstat(path string) (Stat, error)
	Access(path string, mode uint32) error
	Open(path string, flags int) (File, error)
	ReadDir(path string) ([]os.DirEntry, error)
	Statfs(path string) (Statfs, error)
}

// OS is the host filesystem.
type OS struct{}

var _ FS = OS{}

func (OS) Open(path string, flags int) (File, error) {
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (OS) ReadDir(path string) ([]os.DirEntry, error) {
	return os.ReadDir(path)
}
