package zipfs

import (
	"io"

	"github.com/pkg/errors"
)

func (s *realSlot) read(size int, offset int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil, newError(ErrInvalidHandle, nil)
	}
	buf := make([]byte, size)
	n, err := s.file.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, classify(err)
	}
	return buf[:n], nil
}

// read returns up to size bytes at offset. A stream that cannot seek is
// moved forward by reading and discarding; moving it backward fails unless
// the slot may rewind by reopening the entry.
func (s *entrySlot) read(size int, offset int64) ([]byte, error) {
	a := s.archive
	a.mu.Lock()
	defer a.mu.Unlock()
	if s.stream == nil {
		return nil, newError(ErrInvalidHandle, nil)
	}

	if s.stream.Seekable() {
		if _, err := s.stream.Seek(offset, io.SeekStart); err != nil {
			return nil, newError(ErrIO, err)
		}
	} else {
		pos := s.stream.Position()
		if offset < pos {
			if !s.rewind {
				return nil, newError(ErrInvalidOperation, errors.Errorf("%s at %d, asked for %d", s.key, pos, offset))
			}
			if err := s.reopen(); err != nil {
				return nil, err
			}
			pos = 0
		}
		if offset > pos {
			eof, err := discard(s.stream, offset-pos)
			if err != nil {
				return nil, newError(ErrIO, err)
			}
			if eof {
				return []byte{}, nil
			}
		}
	}

	buf := make([]byte, size)
	n, err := io.ReadFull(s.stream, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, newError(ErrIO, err)
	}
	return buf[:n], nil
}

// reopen replaces the stream with a fresh one at position zero. Called
// with archive.mu held.
func (s *entrySlot) reopen() error {
	stream, err := s.archive.reader.OpenEntry(s.key)
	if err != nil {
		return newError(ErrIO, err)
	}
	if err := s.stream.Close(); err != nil {
		s.archive.log.Warn().Err(err).Str("entry", s.key).Msg("cannot close rewound stream")
	}
	s.stream = stream
	return nil
}

// discard skips n bytes of r, at most maxDiscard per step, and reports
// whether r ended first.
func discard(r io.Reader, n int64) (bool, error) {
	for n > 0 {
		skipped, err := io.CopyN(io.Discard, r, min(n, maxDiscard))
		n -= skipped
		if err == io.EOF {
			return true, nil
		}
		if err != nil {
			return false, err
		}
	}
	return false, nil
}
