package zipfs

import (
	"sync"

	"bazil.org/ziprofs/internal/archive"
	"bazil.org/ziprofs/internal/realfs"
)

// Handle numbers handed to the host. Real files get even numbers, archive
// entries odd ones; both start above the standard stream descriptors.
const (
	firstRealHandle  = 4
	firstEntryHandle = 5
)

type slot interface {
	read(size int, offset int64) ([]byte, error)
	seekable() bool
	close() error
}

// realSlot owns an open host file. mu keeps a close from racing a read.
type realSlot struct {
	mu   sync.Mutex
	file realfs.File
}

// entrySlot owns a stream over one archive entry and borrows a reference
// on the archive. The stream is only touched under archive.mu.
type entrySlot struct {
	archive *ArchiveHandle
	key     string
	stream  archive.Stream
	rewind  bool
}

type handleTable struct {
	mu    sync.Mutex
	slots map[uint64]slot
}

func newHandleTable() *handleTable {
	return &handleTable{slots: make(map[uint64]slot)}
}

// insert stores s under the lowest free number of its class.
func (t *handleTable) insert(first uint64, s slot) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := first
	for {
		if _, used := t.slots[h]; !used {
			t.slots[h] = s
			return h
		}
		h += 2
	}
}

// OpenReal registers an open host file.
func (t *handleTable) OpenReal(f realfs.File) uint64 {
	return t.insert(firstRealHandle, &realSlot{file: f})
}

// OpenEntry starts a fresh stream over key. Streams are never shared
// between handles, even for the same entry.
func (t *handleTable) OpenEntry(a *ArchiveHandle, key string, rewind bool) (uint64, error) {
	a.mu.Lock()
	stream, err := a.reader.OpenEntry(key)
	a.mu.Unlock()
	if err != nil {
		return 0, classify(err)
	}
	a.acquire()
	return t.insert(firstEntryHandle, &entrySlot{
		archive: a,
		key:     key,
		stream:  stream,
		rewind:  rewind,
	}), nil
}

// Lookup returns the slot behind h.
func (t *handleTable) Lookup(h uint64) (slot, error) {
	t.mu.Lock()
	s, ok := t.slots[h]
	t.mu.Unlock()
	if !ok {
		return nil, newError(ErrInvalidHandle, nil)
	}
	return s, nil
}

// Close releases h. Closing an unknown handle is an error.
func (t *handleTable) Close(h uint64) error {
	t.mu.Lock()
	s, ok := t.slots[h]
	delete(t.slots, h)
	t.mu.Unlock()
	if !ok {
		return newError(ErrInvalidHandle, nil)
	}
	return s.close()
}

// CloseAll releases every open handle.
func (t *handleTable) CloseAll() {
	t.mu.Lock()
	slots := t.slots
	t.slots = make(map[uint64]slot)
	t.mu.Unlock()
	for _, s := range slots {
		_ = s.close()
	}
}

// Len returns the number of open handles.
func (t *handleTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

func (s *realSlot) seekable() bool {
	return true
}

func (s *realSlot) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return newError(ErrInvalidHandle, nil)
	}
	err := s.file.Close()
	s.file = nil
	return classify(err)
}

func (s *entrySlot) seekable() bool {
	s.archive.mu.Lock()
	defer s.archive.mu.Unlock()
	return s.rewind || (s.stream != nil && s.stream.Seekable())
}

func (s *entrySlot) close() error {
	a := s.archive
	a.mu.Lock()
	if s.stream == nil {
		a.mu.Unlock()
		return newError(ErrInvalidHandle, nil)
	}
	err := s.stream.Close()
	s.stream = nil
	a.mu.Unlock()
	a.Release()
	if err != nil {
		return newError(ErrIO, err)
	}
	return nil
}
