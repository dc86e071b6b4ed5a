package archive

import (
	"errors"
	"io"
)

// ErrNotSeekable is returned by Seek on a forward-only stream.
var ErrNotSeekable = errors.New("stream is not seekable")

// Stream is a read cursor over one archive entry.
type Stream interface {
	io.ReadCloser
	// Position is the logical offset of the next byte Read returns.
	Position() int64
	// Seekable reports whether Seek can reposition the stream.
	Seekable() bool
	Seek(offset int64, whence int) (int64, error)
}

type sectionStream struct {
	*io.SectionReader
}

var _ Stream = (*sectionStream)(nil)

func (s *sectionStream) Position() int64 {
	pos, _ := s.SectionReader.Seek(0, io.SeekCurrent)
	return pos
}

func (s *sectionStream) Seekable() bool { return true }
func (s *sectionStream) Close() error { return nil }

// inflateStream counts the bytes a decompressor has handed out.
type inflateStream struct {
	rc  io.ReadCloser
	pos int64
}

var _ Stream = (*inflateStream)(nil)

func (s *inflateStream) Read(p []byte) (int, error) {
	n, err := s.rc.Read(p)
	s.pos += int64(n)
	return n, err
}

func (s *inflateStream) Seek(offset int64, whence int) (int64, error) {
	return s.pos, ErrNotSeekable
}

func (s *inflateStream) Position() int64 { return s.pos }
func (s *inflateStream) Seekable() bool { return false }
func (s *inflateStream) Close() error { return s.rc.Close() }
