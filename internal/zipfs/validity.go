package zipfs

import (
	"sync/atomic"

	"bazil.org/ziprofs/internal/realfs"
	lru "github.com/hashicorp/golang-lru/v2"
)

type validityKey struct {
	path  string
	mtime int64
}

// validityCache memoizes whether a real path holds a valid archive. The key
// includes the modification time, so a rewritten file is sniffed again.
type validityCache struct {
	real   realfs.FS
	sniff  func(path string) bool
	cache  *lru.Cache[validityKey, bool]
	hits   atomic.Int64
	misses atomic.Int64
}

func newValidityCache(rfs realfs.FS, sniff func(string) bool, size int) (*validityCache, error) {
	cache, err := lru.New[validityKey, bool](size)
	if err != nil {
		return nil, err
	}
	return &validityCache{
		real:  rfs,
		sniff: sniff,
		cache: cache,
	}, nil
}

// IsValid stats path on every call and parses it only when the
// (path, mtime) pair has not been seen.
func (v *validityCache) IsValid(path string) bool {
	st, err := v.real.Lstat(path)
	if err != nil || st.Mode.IsDir() {
		return false
	}
	key := validityKey{path: path, mtime: st.Mtime.UnixNano()}
	if ok, found := v.cache.Get(key); found {
		v.hits.Add(1)
		return ok
	}
	v.misses.Add(1)
	ok := v.sniff(path)
	v.cache.Add(key, ok)
	return ok
}
