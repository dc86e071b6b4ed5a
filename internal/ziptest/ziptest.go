// Package ziptest builds zip fixtures for tests.
package ziptest

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// File is one entry of a fixture. Names ending in "/" are directory entries.
type File struct {
	Name     string
	Body     string
	Method   uint16
	Modified time.Time
}

// Bytes returns the encoded archive.
func Bytes(t testing.TB, files ...File) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	w.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())
	for _, f := range files {
		hdr := &zip.FileHeader{
			Name:     f.Name,
			Method:   f.Method,
			Modified: f.Modified,
		}
		if hdr.Modified.IsZero() {
			hdr.Modified = time.Date(2020, 1, 2, 3, 4, 6, 0, time.UTC)
		}
		fw, err := w.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("cannot create zip entry %s: %v", f.Name, err)
		}
		if _, err := fw.Write([]byte(f.Body)); err != nil {
			t.Fatalf("cannot write zip entry %s: %v", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("cannot finalize zip: %v", err)
	}
	return buf.Bytes()
}

// Write stores an archive at path.
func Write(t testing.TB, path string, files ...File) {
	t.Helper()
	if err := os.WriteFile(path, Bytes(t, files...), 0o644); err != nil {
		t.Fatalf("cannot write zip %s: %v", path, err)
	}
}

// Touch moves the modification time of path forward by d.
func Touch(t testing.TB, path string, d time.Duration) {
	t.Helper()
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("cannot stat %s: %v", path, err)
	}
	mtime := fi.ModTime().Add(d)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("cannot touch %s: %v", path, err)
	}
}
