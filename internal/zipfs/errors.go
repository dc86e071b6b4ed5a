package zipfs

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// Every error returned by FS matches exactly one of these with errors.Is.
var (
	ErrNotFound         = errors.New("no such file or directory")
	ErrReadOnly         = errors.New("read-only file system")
	ErrPermission       = errors.New("permission denied")
	ErrInvalidHandle    = errors.New("invalid file handle")
	ErrInvalidOperation = errors.New("cannot seek backwards on a non-seekable stream")
	ErrIO               = errors.New("input/output error")
	ErrCorruptArchive   = errors.New("corrupt archive")
)

// taxonomyError attaches one of the sentinels to an underlying cause
// without exposing the cause's type to errors.Is/As callers.
type taxonomyError struct {
	kind  error
	cause error
}

func (e *taxonomyError) Error() string {
	if e.cause == nil {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *taxonomyError) Unwrap() error { return e.kind }

func newError(kind, cause error) error {
	return &taxonomyError{kind: kind, cause: cause}
}

// classify maps a host filesystem error onto the taxonomy. A path that
// cannot name anything, such as one running through a plain file, is not
// found.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist),
		errors.Is(err, syscall.ENOTDIR),
		errors.Is(err, syscall.ENAMETOOLONG),
		errors.Is(err, syscall.ELOOP):
		return newError(ErrNotFound, err)
	case errors.Is(err, os.ErrPermission):
		return newError(ErrPermission, err)
	default:
		return newError(ErrIO, err)
	}
}

// Errno maps an error returned by FS onto the errno the kernel expects.
func Errno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, ErrReadOnly):
		return syscall.EROFS
	case errors.Is(err, ErrPermission):
		return syscall.EACCES
	case errors.Is(err, ErrInvalidHandle):
		return syscall.EBADF
	case errors.Is(err, ErrInvalidOperation):
		return syscall.EINVAL
	default:
		return syscall.EIO
	}
}
