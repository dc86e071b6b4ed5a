package zipfs

import (
	"bazil.org/ziprofs/internal/archive"
	"bazil.org/ziprofs/internal/realfs"
	"github.com/rs/zerolog"
)

const (
	// DefaultCacheSize is the default number of archives kept open.
	DefaultCacheSize = 1000

	// ValidityCacheSize bounds the memoized archive format checks.
	ValidityCacheSize = 2048

	// Suffix marks a path segment as an archive candidate.
	Suffix = ".zip"

	// maxDiscard bounds the buffer used to skip forward in a stream.
	maxDiscard = 16 << 20
)

// ArchiveReader is an open archive as the core consumes it.
type ArchiveReader interface {
	Entries() []archive.Entry
	Stat(name string) (archive.Entry, bool)
	OpenEntry(name string) (archive.Stream, error)
	Close() error
}

// Config holds the mount-time options of a filesystem.
type Config struct {
	// CacheSize is the number of archives kept open at once.
	CacheSize int

	// NoZipCheck trusts the file suffix alone and skips parsing a
	// candidate archive during path resolution.
	NoZipCheck bool

	// Rewind lets a read behind the current position of a forward-only
	// entry stream reopen the entry and skip to the offset, instead of
	// failing with ErrInvalidOperation.
	Rewind bool

	Logger zerolog.Logger

	// Real, OpenArchive and SniffArchive default to the host filesystem
	// and the zip reader.
	Real         realfs.FS
	OpenArchive  func(path string) (ArchiveReader, error)
	SniffArchive func(path string) bool
}

func (c *Config) setDefaults() {
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.Real == nil {
		c.Real = realfs.OS{}
	}
	if c.OpenArchive == nil {
		c.OpenArchive = func(path string) (ArchiveReader, error) {
			r, err := archive.Open(path)
			if err != nil {
				return nil, err
			}
			return r, nil
		}
	}
	if c.SniffArchive == nil {
		c.SniffArchive = archive.Sniff
	}
}
