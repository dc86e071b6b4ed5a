package zipfs

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"bazil.org/ziprofs/internal/realfs"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ArchiveHandle is one open archive, shared by the cache and every stream
// opened from it. The reader is closed when the last reference goes away.
type ArchiveHandle struct {
	path    string
	modTime time.Time
	reader  ArchiveReader
	log     zerolog.Logger

	// mu serializes everything that touches decompression state.
	mu   sync.Mutex
	refs atomic.Int32
}

// Path returns the host path of the archive.
func (h *ArchiveHandle) Path() string {
	return h.path
}

func (h *ArchiveHandle) acquire() {
	h.refs.Add(1)
}

// Release drops a reference obtained from the cache.
func (h *ArchiveHandle) Release() {
	switch n := h.refs.Add(-1); {
	case n == 0:
		h.log.Debug().Str("path", h.path).Msg("closing archive")
		if err := h.reader.Close(); err != nil {
			h.log.Warn().Err(err).Str("path", h.path).Msg("cannot close archive")
		}
	case n < 0:
		panic("zipfs: archive handle released too many times")
	}
}

// CacheStats is a snapshot of archive cache activity.
type CacheStats struct {
	Hits          int64
	Misses        int64
	Evictions     int64
	Invalidations int64
	Entries       int
	MaxEntries    int
}

// archiveCache keeps at most size archives open, least recently used
// first out. An entry whose file got a newer modification time is
// reopened.
type archiveCache struct {
	real  realfs.FS
	open  func(path string) (ArchiveReader, error)
	log   zerolog.Logger
	size  int
	group singleflight.Group

	mu  sync.Mutex
	lru *simplelru.LRU[string, *ArchiveHandle]
	// handles dropped from lru under mu, released once mu is unlocked
	dropped []*ArchiveHandle

	hits          atomic.Int64
	misses        atomic.Int64
	evictions     atomic.Int64
	invalidations atomic.Int64
}

func newArchiveCache(rfs realfs.FS, open func(string) (ArchiveReader, error), size int, log zerolog.Logger) (*archiveCache, error) {
	c := &archiveCache{
		real: rfs,
		open: open,
		log:  log,
		size: size,
	}
	l, err := simplelru.NewLRU[string, *ArchiveHandle](size, func(path string, h *ArchiveHandle) {
		c.log.Debug().Str("path", path).Msg("dropping cached archive")
		c.dropped = append(c.dropped, h)
	})
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// unlock releases mu and then the cache references of dropped handles.
func (c *archiveCache) unlock() {
	dropped := c.dropped
	c.dropped = nil
	c.mu.Unlock()
	for _, h := range dropped {
		h.Release()
	}
}

// Get returns the open archive at path with a reference held for the
// caller, who must Release it.
func (c *archiveCache) Get(path string) (*ArchiveHandle, error) {
	st, err := c.real.Lstat(path)
	if err != nil {
		return nil, classify(err)
	}
	for first := true; ; first = false {
		if h := c.lookup(path, st.Mtime, first); h != nil {
			return h, nil
		}
		_, err, _ := c.group.Do(path, func() (interface{}, error) {
			return nil, c.load(path, st.Mtime)
		})
		if err != nil {
			return nil, err
		}
		// The loaded handle may have been evicted again before we got
		// to it; look it up once more.
	}
}

// lookup returns the cached handle for path with a reference held, or nil.
// Only the first lookup of a Get counts as a hit or miss.
func (c *archiveCache) lookup(path string, mtime time.Time, count bool) *ArchiveHandle {
	c.mu.Lock()
	defer c.unlock()

	h, ok := c.lru.Get(path)
	if ok && mtime.After(h.modTime) {
		c.log.Debug().Str("path", path).Time("cached", h.modTime).Time("mtime", mtime).Msg("archive changed, invalidating")
		c.lru.Remove(path)
		c.invalidations.Add(1)
		ok = false
	}
	if !ok {
		if count {
			c.misses.Add(1)
		}
		return nil
	}
	if count {
		c.hits.Add(1)
	}
	h.acquire()
	return h
}

func (c *archiveCache) load(path string, mtime time.Time) error {
	// An earlier flight may have loaded it between our lookup and Do.
	c.mu.Lock()
	h, ok := c.lru.Peek(path)
	c.mu.Unlock()
	if ok && !mtime.After(h.modTime) {
		return nil
	}

	c.log.Debug().Str("path", path).Time("mtime", mtime).Msg("opening archive")
	reader, err := c.open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newError(ErrNotFound, err)
		}
		return newError(ErrCorruptArchive, errors.Wrapf(err, "cannot open archive %s", path))
	}
	h = &ArchiveHandle{
		path:    path,
		modTime: mtime,
		reader:  reader,
		log:     c.log,
	}
	// the cache's own reference
	h.acquire()

	c.mu.Lock()
	defer c.unlock()
	c.lru.Remove(path)
	if c.lru.Add(path, h) {
		c.evictions.Add(1)
	}
	return nil
}

// Stats returns cache statistics.
func (c *archiveCache) Stats() CacheStats {
	c.mu.Lock()
	entries := c.lru.Len()
	c.mu.Unlock()
	return CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Evictions:     c.evictions.Load(),
		Invalidations: c.invalidations.Load(),
		Entries:       entries,
		MaxEntries:    c.size,
	}
}

// Close drops every cached archive. Archives still referenced by open
// streams close when those are released.
func (c *archiveCache) Close() {
	c.mu.Lock()
	c.lru.Purge()
	c.unlock()
}
