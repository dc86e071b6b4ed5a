package zipfs

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"bazil.org/ziprofs/internal/archive"
	"bazil.org/ziprofs/internal/ziptest"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

// tracker counts archive opens and closes per path.
type tracker struct {
	mu     sync.Mutex
	opens  map[string]int
	closes map[string]int
}

func newTracker() *tracker {
	return &tracker{opens: map[string]int{}, closes: map[string]int{}}
}

type trackedReader struct {
	*archive.Reader
	t *tracker
}

func (r *trackedReader) Close() error {
	r.t.mu.Lock()
	r.t.closes[r.Path()]++
	r.t.mu.Unlock()
	return r.Reader.Close()
}

func (t *tracker) open(path string) (ArchiveReader, error) {
	r, err := archive.Open(path)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.opens[path]++
	t.mu.Unlock()
	return &trackedReader{Reader: r, t: t}, nil
}

func (t *tracker) counts(path string) (opens, closes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens[path], t.closes[path]
}

func (t *tracker) totals() (opens, closes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range t.opens {
		opens += n
	}
	for _, n := range t.closes {
		closes += n
	}
	return opens, closes
}

const lorem = "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore et dolore magna aliqua."

// newTestFS serves a fresh directory holding:
//
//	plain.txt
//	a.zip: top, d/f1, d/sub/f2, d/sub/f3, stored, deflated, b.zip
//	dir/c.zip: x
//	fake.zip (not a zip)
//	folder.zip/ (a directory)
func newTestFS(t *testing.T, cfg Config) (*FS, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "plain.txt"), []byte("plain text\n"), 0o644))
	inner := ziptest.Bytes(t, ziptest.File{Name: "inner", Body: "inner"})
	ziptest.Write(t, filepath.Join(root, "a.zip"),
		ziptest.File{Name: "d/f1", Body: "one"},
		ziptest.File{Name: "d/sub/f2", Body: "two", Method: zip.Deflate},
		ziptest.File{Name: "d/sub/f3", Body: "three"},
		ziptest.File{Name: "top", Body: "top"},
		ziptest.File{Name: "stored", Body: lorem},
		ziptest.File{Name: "deflated", Body: lorem, Method: zip.Deflate},
		ziptest.File{Name: "b.zip", Body: string(inner)},
	)
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0o755))
	ziptest.Write(t, filepath.Join(root, "dir", "c.zip"), ziptest.File{Name: "x", Body: "x"})
	require.NoError(t, os.WriteFile(filepath.Join(root, "fake.zip"), []byte("not a zip"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "folder.zip"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "folder.zip", "y"), []byte("y"), 0o644))

	f, err := New(root, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f, f.Root()
}
