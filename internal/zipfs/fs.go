// Package zipfs resolves paths under a real directory tree into plain files
// or entries of zip archives, and serves reads from either. It is the
// protocol-independent core of the filesystem; internal/fusefs adapts it to
// FUSE.
//
// A path segment ending in ".zip" that holds a valid archive behaves as a
// directory of the archive's entries. Only the shallowest such segment
// counts: an archive stored inside another archive is an ordinary file.
package zipfs

import (
	"os"
	"path/filepath"
	"strings"

	"bazil.org/ziprofs/internal/realfs"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Operations is the set of filesystem requests the core answers. Paths are
// virtual: absolute and slash separated, relative to the mount root.
type Operations interface {
	Access(path string, mode uint32) error
	Getattr(path string) (Attr, error)
	Open(path string, flags int) (uint64, error)
	Read(path string, handle uint64, size int, offset int64) ([]byte, error)
	Readdir(path string) ([]DirEntry, error)
	Release(path string, handle uint64) error
	Statfs(path string) (realfs.Statfs, error)
}

// FS mirrors root with its zip archives opened up as directories.
type FS struct {
	root     string
	cfg      Config
	log      zerolog.Logger
	resolver *resolver
	archives *archiveCache
	handles  *handleTable
}

var _ Operations = (*FS)(nil)

// New returns a filesystem serving the directory root.
func New(root string, cfg Config) (*FS, error) {
	cfg.setDefaults()

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot resolve root %s", root)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	st, err := cfg.Real.Lstat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot stat root %s", root)
	}
	if !st.Mode.IsDir() {
		return nil, errors.Errorf("root %s is not a directory", root)
	}

	validity, err := newValidityCache(cfg.Real, cfg.SniffArchive, ValidityCacheSize)
	if err != nil {
		return nil, err
	}
	archives, err := newArchiveCache(cfg.Real, cfg.OpenArchive, cfg.CacheSize, cfg.Logger.With().Str("component", "cache").Logger())
	if err != nil {
		return nil, err
	}

	return &FS{
		root: root,
		cfg:  cfg,
		log:  cfg.Logger,
		resolver: &resolver{
			root:     root,
			check:    !cfg.NoZipCheck,
			validity: validity,
		},
		archives: archives,
		handles:  newHandleTable(),
	}, nil
}

// Root returns the real directory being served.
func (f *FS) Root() string {
	return f.root
}

// Resolve classifies a virtual path.
func (f *FS) Resolve(path string) Location {
	return f.resolver.Resolve(path)
}

func (f *FS) Access(path string, mode uint32) error {
	loc := f.resolver.Resolve(path)
	if loc.InArchive() {
		if mode&unix.W_OK != 0 {
			return errors.Wrap(newError(ErrReadOnly, nil), path)
		}
		return nil
	}
	if err := f.cfg.Real.Access(loc.Real, mode); err != nil {
		if cerr := classify(err); errors.Is(cerr, ErrNotFound) {
			return errors.Wrap(cerr, path)
		}
		return errors.Wrap(newError(ErrPermission, err), path)
	}
	return nil
}

func (f *FS) Getattr(path string) (Attr, error) {
	loc := f.resolver.Resolve(path)
	if !loc.InArchive() {
		st, err := f.cfg.Real.Lstat(loc.Real)
		if err != nil {
			return Attr{}, errors.Wrap(classify(err), path)
		}
		return attrFromStat(st), nil
	}

	st, err := f.cfg.Real.Lstat(loc.Archive)
	if err != nil {
		return Attr{}, errors.Wrap(classify(err), path)
	}
	if loc.Key == "" {
		return archiveRootAttr(st), nil
	}
	h, err := f.archives.Get(loc.Archive)
	if err != nil {
		return Attr{}, errors.Wrap(err, path)
	}
	defer h.Release()
	a, err := entryAttr(h, st, loc.Key)
	if err != nil {
		return Attr{}, errors.Wrap(err, path)
	}
	return a, nil
}

// Open returns a handle for reading path. Inside archives any write intent
// fails up front. Outside them the access mode is passed through, minus the
// flags that would create or modify the file.
func (f *FS) Open(path string, flags int) (uint64, error) {
	loc := f.resolver.Resolve(path)
	if !loc.InArchive() {
		flags &^= os.O_CREATE | os.O_TRUNC | os.O_EXCL | os.O_APPEND
		file, err := f.cfg.Real.Open(loc.Real, flags)
		if err != nil {
			return 0, errors.Wrap(classify(err), path)
		}
		return f.handles.OpenReal(file), nil
	}

	if flags&(os.O_WRONLY|os.O_RDWR|os.O_TRUNC|os.O_APPEND|os.O_CREATE) != 0 {
		return 0, errors.Wrap(newError(ErrReadOnly, nil), path)
	}
	if loc.Key == "" {
		return 0, errors.Wrap(newError(ErrNotFound, nil), path)
	}
	h, err := f.archives.Get(loc.Archive)
	if err != nil {
		return 0, errors.Wrap(err, path)
	}
	defer h.Release()
	fh, err := f.handles.OpenEntry(h, loc.Key, f.cfg.Rewind)
	if err != nil {
		return 0, errors.Wrap(err, path)
	}
	f.log.Debug().Str("path", path).Uint64("handle", fh).Msg("opened archive entry")
	return fh, nil
}

func (f *FS) Read(path string, handle uint64, size int, offset int64) ([]byte, error) {
	if size < 0 || offset < 0 {
		return nil, errors.Wrapf(newError(ErrInvalidOperation, nil), "%s: read of %d at %d", path, size, offset)
	}
	s, err := f.handles.Lookup(handle)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: handle %d", path, handle)
	}
	if size == 0 {
		return []byte{}, nil
	}
	data, err := s.read(size, offset)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: handle %d", path, handle)
	}
	return data, nil
}

func (f *FS) Readdir(path string) ([]DirEntry, error) {
	loc := f.resolver.Resolve(path)
	if !loc.InArchive() {
		entries, err := f.cfg.Real.ReadDir(loc.Real)
		if err != nil {
			return nil, errors.Wrap(classify(err), path)
		}
		res := append([]DirEntry(nil), dotEntries...)
		for _, e := range entries {
			dir := e.IsDir()
			if !dir && strings.HasSuffix(e.Name(), Suffix) {
				dir = f.resolver.isArchive(filepath.Join(loc.Real, e.Name()))
			}
			res = append(res, DirEntry{Name: e.Name(), Dir: dir})
		}
		return res, nil
	}

	h, err := f.archives.Get(loc.Archive)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	defer h.Release()
	if loc.Key != "" {
		a, err := entryAttr(h, realfs.Stat{}, loc.Key)
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		if !a.Mode.IsDir() {
			return nil, errors.Wrap(newError(ErrNotFound, nil), path)
		}
	}
	return listEntries(h.reader.Entries(), loc.Key), nil
}

func (f *FS) Release(path string, handle uint64) error {
	if err := f.handles.Close(handle); err != nil {
		return errors.Wrapf(err, "%s: handle %d", path, handle)
	}
	return nil
}

// Statfs reports the host volume holding path. Paths inside an archive
// report the volume of the archive file.
func (f *FS) Statfs(path string) (realfs.Statfs, error) {
	loc := f.resolver.Resolve(path)
	target := loc.Real
	if loc.InArchive() {
		target = loc.Archive
	}
	st, err := f.cfg.Real.Statfs(target)
	if err != nil {
		return realfs.Statfs{}, errors.Wrap(classify(err), path)
	}
	return st, nil
}

// Seekable reports whether handle serves reads at arbitrary offsets.
func (f *FS) Seekable(handle uint64) bool {
	s, err := f.handles.Lookup(handle)
	if err != nil {
		return false
	}
	return s.seekable()
}

// Stats returns archive cache statistics.
func (f *FS) Stats() CacheStats {
	return f.archives.Stats()
}

// OpenHandles returns the number of handles not yet released.
func (f *FS) OpenHandles() int {
	return f.handles.Len()
}

// Close releases every handle and cached archive.
func (f *FS) Close() error {
	f.handles.CloseAll()
	f.archives.Close()
	return nil
}
