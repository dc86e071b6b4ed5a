// Package archive reads zip archives for the filesystem: the entry index of
// one archive file and decompression streams over its entries.
package archive

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Entry describes one named item in an archive.
type Entry struct {
	Name     string
	Size     uint64
	Modified time.Time
	Method   uint16
}

// IsDir reports whether the entry is an explicit directory entry.
func (e Entry) IsDir() bool {
	return strings.HasSuffix(e.Name, "/")
}

// Reader is an open archive. A Reader is safe for concurrent index lookups;
// its streams share the underlying file through positional reads.
type Reader struct {
	path  string
	file  *os.File
	zr    *zip.Reader
	files map[string]*zip.File
	// entries in central directory order
	entries []Entry
}

func newZipReader(f *os.File) (*zip.Reader, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(f, fi.Size())
	if err != nil {
		return nil, err
	}
	zr.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())
	return zr, nil
}

// Open opens the archive at path and indexes its entries.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	zr, err := newZipReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "cannot read zip %s", path)
	}

	r := &Reader{
		path:    path,
		file:    f,
		zr:      zr,
		files:   make(map[string]*zip.File, len(zr.File)),
		entries: make([]Entry, 0, len(zr.File)),
	}
	for _, zf := range zr.File {
		if _, dup := r.files[zf.Name]; dup {
			// first entry wins, like the central directory lookup of most tools
			continue
		}
		r.files[zf.Name] = zf
		r.entries = append(r.entries, Entry{
			Name:     zf.Name,
			Size:     zf.UncompressedSize64,
			Modified: zf.Modified,
			Method:   zf.Method,
		})
	}
	return r, nil
}

// Sniff reports whether the file at path parses as a zip archive.
func Sniff(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	_, err = newZipReader(f)
	return err == nil
}

// Path returns the real path the archive was opened from.
func (r *Reader) Path() string {
	return r.path
}

// Entries returns the archive's entries in central directory order. The
// slice must not be modified.
func (r *Reader) Entries() []Entry {
	return r.entries
}

// Stat looks up an entry by its exact name.
func (r *Reader) Stat(name string) (Entry, bool) {
	zf, ok := r.files[name]
	if !ok {
		return Entry{}, false
	}
	return Entry{
		Name:     zf.Name,
		Size:     zf.UncompressedSize64,
		Modified: zf.Modified,
		Method:   zf.Method,
	}, true
}

// OpenEntry starts a new stream over the named entry. Stored entries are
// served straight from the archive file and can seek; compressed entries
// only read forward.
func (r *Reader) OpenEntry(name string) (Stream, error) {
	zf, ok := r.files[name]
	if !ok || strings.HasSuffix(name, "/") {
		return nil, os.ErrNotExist
	}
	if zf.Method == zip.Store {
		off, err := zf.DataOffset()
		if err != nil {
			return nil, errors.Wrapf(err, "cannot locate %s in %s", name, r.path)
		}
		return &sectionStream{
			SectionReader: io.NewSectionReader(r.file, off, int64(zf.UncompressedSize64)),
		}, nil
	}
	rc, err := zf.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %s in %s", name, r.path)
	}
	return &inflateStream{rc: rc}, nil
}

// Close releases the archive file.
func (r *Reader) Close() error {
	return r.file.Close()
}
