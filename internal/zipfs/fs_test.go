package zipfs

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"bazil.org/ziprofs/internal/archive"
	"bazil.org/ziprofs/internal/ziptest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func names(entries []DirEntry) []string {
	var res []string
	for _, e := range entries {
		res = append(res, e.Name)
	}
	return res
}

func TestListEntries(t *testing.T) {
	entries := []archive.Entry{
		{Name: "d/f1"},
		{Name: "d/sub/f2"},
		{Name: "d/sub/f3"},
		{Name: "top"},
	}
	assert.ElementsMatch(t, []string{".", "..", "top", "d"}, names(listEntries(entries, "")))
	assert.ElementsMatch(t, []string{".", "..", "f1", "sub"}, names(listEntries(entries, "d")))
	assert.ElementsMatch(t, []string{".", "..", "f2", "f3"}, names(listEntries(entries, "d/sub")))
	assert.ElementsMatch(t, []string{".", ".."}, names(listEntries(entries, "top")))

	root := listEntries(entries, "")
	assert.Equal(t, DirEntry{Name: "top"}, root[2])
	assert.Equal(t, DirEntry{Name: "d", Dir: true}, root[3])
}

func TestListEntriesExplicitDirectories(t *testing.T) {
	entries := []archive.Entry{
		{Name: "d/"},
		{Name: "d/f1"},
		{Name: "dx/"},
		{Name: "dx/f2"},
		{Name: "d/e/"},
	}
	assert.Equal(t, []string{".", "..", "d", "dx"}, names(listEntries(entries, "")))
	assert.Equal(t, []string{".", "..", "f1", "e"}, names(listEntries(entries, "d")))
}

func TestReaddir(t *testing.T) {
	f, _ := newTestFS(t, Config{})

	got, err := f.Readdir("/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{".", "..", "plain.txt", "a.zip", "dir", "fake.zip", "folder.zip"}, names(got))

	got, err = f.Readdir("/a.zip")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{".", "..", "top", "stored", "deflated", "b.zip", "d"}, names(got))

	got, err = f.Readdir("/a.zip/d")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{".", "..", "f1", "sub"}, names(got))

	for _, missing := range []string{"/missing", "/plain.txt", "/plain.txt/x", "/fake.zip/x", "/a.zip/nope", "/a.zip/top", "/a.zip/d/f1"} {
		_, err = f.Readdir(missing)
		assert.ErrorIs(t, err, ErrNotFound, missing)
	}
}

func TestListEntriesSkipsDotNames(t *testing.T) {
	entries := []archive.Entry{
		{Name: "../evil"},
		{Name: "./y"},
		{Name: "ok"},
		{Name: "d/./z"},
		{Name: "d/.."},
	}
	assert.Equal(t, []string{".", "..", "ok", "d"}, names(listEntries(entries, "")))
	assert.Equal(t, []string{".", ".."}, names(listEntries(entries, "d")))
}

func TestGetattr(t *testing.T) {
	f, root := newTestFS(t, Config{})
	zipStat, err := os.Lstat(filepath.Join(root, "a.zip"))
	require.NoError(t, err)

	a, err := f.Getattr("/plain.txt")
	require.NoError(t, err)
	assert.True(t, a.Mode.IsRegular())
	assert.Equal(t, os.FileMode(0o644), a.Mode.Perm())
	assert.Equal(t, uint64(11), a.Size)

	a, err = f.Getattr("/a.zip")
	require.NoError(t, err)
	assert.True(t, a.Mode.IsDir())
	assert.Equal(t, zipStat.Mode().Perm()&0o555, a.Mode.Perm())
	assert.True(t, zipStat.ModTime().Equal(a.Mtime))

	a, err = f.Getattr("/a.zip/stored")
	require.NoError(t, err)
	assert.True(t, a.Mode.IsRegular())
	assert.Equal(t, os.FileMode(0o555), a.Mode.Perm())
	assert.Equal(t, uint64(len(lorem)), a.Size)
	assert.True(t, time.Date(2020, 1, 2, 3, 4, 6, 0, time.UTC).Equal(a.Mtime), "mtime %v", a.Mtime)

	for _, dir := range []string{"/a.zip/d", "/a.zip/d/sub"} {
		a, err = f.Getattr(dir)
		require.NoError(t, err, dir)
		assert.True(t, a.Mode.IsDir(), dir)
		assert.Equal(t, os.FileMode(0o555), a.Mode.Perm(), dir)
	}

	// b.zip is a plain entry, not an archive
	a, err = f.Getattr("/a.zip/b.zip")
	require.NoError(t, err)
	assert.True(t, a.Mode.IsRegular())

	for _, missing := range []string{"/a.zip/nope", "/a.zip/d/f", "/a.zip/b.zip/inner", "/nope", "/fake.zip/x", "/plain.txt/x"} {
		_, err = f.Getattr(missing)
		assert.ErrorIs(t, err, ErrNotFound, missing)
	}
}

func TestGetattrExplicitDirectory(t *testing.T) {
	root := t.TempDir()
	mtime := time.Date(2021, 6, 7, 8, 9, 10, 0, time.UTC)
	ziptest.Write(t, filepath.Join(root, "e.zip"),
		ziptest.File{Name: "empty/", Modified: mtime},
	)
	f, err := New(root, Config{})
	require.NoError(t, err)
	defer f.Close()

	a, err := f.Getattr("/e.zip/empty")
	require.NoError(t, err)
	assert.True(t, a.Mode.IsDir())
	assert.True(t, mtime.Equal(a.Mtime))
}

func TestGetattrInvalidation(t *testing.T) {
	f, root := newTestFS(t, Config{})
	path := filepath.Join(root, "dir", "c.zip")

	_, err := f.Getattr("/dir/c.zip/x")
	require.NoError(t, err)

	ziptest.Write(t, path, ziptest.File{Name: "y", Body: "y"})
	ziptest.Touch(t, path, 2*time.Second)

	_, err = f.Getattr("/dir/c.zip/y")
	require.NoError(t, err)
	_, err = f.Getattr("/dir/c.zip/x")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(1), f.Stats().Invalidations)
}

func TestReadOnly(t *testing.T) {
	f, _ := newTestFS(t, Config{})

	for _, p := range []string{"/a.zip", "/a.zip/top", "/a.zip/d"} {
		assert.ErrorIs(t, f.Access(p, unix.W_OK), ErrReadOnly, p)
		assert.ErrorIs(t, f.Access(p, unix.R_OK|unix.W_OK), ErrReadOnly, p)
		assert.NoError(t, f.Access(p, unix.R_OK), p)
	}
	for _, flags := range []int{os.O_WRONLY, os.O_RDWR, os.O_RDONLY | os.O_TRUNC, os.O_WRONLY | os.O_APPEND} {
		_, err := f.Open("/a.zip/top", flags)
		assert.ErrorIs(t, err, ErrReadOnly)
	}

	// real paths follow host permissions
	assert.NoError(t, f.Access("/plain.txt", unix.W_OK))
	assert.NoError(t, f.Access("/plain.txt", unix.R_OK))
	assert.ErrorIs(t, f.Access("/nope", unix.R_OK), ErrNotFound)
	assert.ErrorIs(t, f.Access("/plain.txt/x", unix.R_OK), ErrNotFound)
	assert.ErrorIs(t, f.Access("/fake.zip/x", unix.R_OK), ErrNotFound)
	h, err := f.Open("/plain.txt", os.O_RDWR)
	require.NoError(t, err)
	require.NoError(t, f.Release("/plain.txt", h))
}

func TestOpenTruncateIsStripped(t *testing.T) {
	f, root := newTestFS(t, Config{})

	h, err := f.Open("/plain.txt", os.O_WRONLY|os.O_TRUNC)
	require.NoError(t, err)
	require.NoError(t, f.Release("/plain.txt", h))

	data, err := os.ReadFile(filepath.Join(root, "plain.txt"))
	require.NoError(t, err)
	assert.Equal(t, "plain text\n", string(data))
}

func TestOpenMissing(t *testing.T) {
	f, _ := newTestFS(t, Config{})

	for _, p := range []string{"/a.zip", "/a.zip/d", "/a.zip/nope", "/nope", "/fake.zip/x", "/plain.txt/x"} {
		_, err := f.Open(p, os.O_RDONLY)
		assert.ErrorIs(t, err, ErrNotFound, p)
		assert.Equal(t, syscall.ENOENT, Errno(err), p)
	}
}

func TestCorruptArchiveWithoutCheck(t *testing.T) {
	f, _ := newTestFS(t, Config{NoZipCheck: true})

	_, err := f.Readdir("/fake.zip")
	assert.ErrorIs(t, err, ErrCorruptArchive)
	assert.Equal(t, syscall.EIO, Errno(err))
}

func TestStatfs(t *testing.T) {
	f, _ := newTestFS(t, Config{})
	if _, err := f.Statfs("/"); errors.Is(err, ErrIO) {
		t.Skip("statfs not supported on this platform")
	}

	st, err := f.Statfs("/")
	require.NoError(t, err)
	assert.NotZero(t, st.Bsize)

	inside, err := f.Statfs("/a.zip/d/f1")
	require.NoError(t, err)
	assert.Equal(t, st.Bsize, inside.Bsize)
}

func TestErrno(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want syscall.Errno
	}{
		{nil, 0},
		{newError(ErrNotFound, nil), syscall.ENOENT},
		{errors.Wrap(newError(ErrReadOnly, nil), "x"), syscall.EROFS},
		{newError(ErrPermission, os.ErrPermission), syscall.EACCES},
		{newError(ErrInvalidHandle, nil), syscall.EBADF},
		{newError(ErrInvalidOperation, nil), syscall.EINVAL},
		{newError(ErrCorruptArchive, nil), syscall.EIO},
		{classify(os.ErrNotExist), syscall.ENOENT},
		{classify(&os.PathError{Op: "lstat", Path: "/f/x", Err: syscall.ENOTDIR}), syscall.ENOENT},
		{classify(&os.PathError{Op: "lstat", Path: "/l", Err: syscall.ELOOP}), syscall.ENOENT},
		{classify(&os.PathError{Op: "lstat", Path: "/n", Err: syscall.ENAMETOOLONG}), syscall.ENOENT},
		{classify(&os.PathError{Op: "read", Path: "/f", Err: syscall.EIO}), syscall.EIO},
		{classify(errors.New("boom")), syscall.EIO},
	} {
		assert.Equal(t, tc.want, Errno(tc.err), "%v", tc.err)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	tr := newTracker()
	f, _ := newTestFS(t, Config{OpenArchive: tr.open})

	_, err := f.Open("/a.zip/top", os.O_RDONLY)
	require.NoError(t, err)
	_, err = f.Open("/dir/c.zip/x", os.O_RDONLY)
	require.NoError(t, err)

	require.NoError(t, f.Close())
	opens, closes := tr.totals()
	assert.Equal(t, 2, opens)
	assert.Equal(t, 2, closes)
	assert.Equal(t, 0, f.OpenHandles())
}
