// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package linereader

import (
	"errors"
	"fmt"
	"io"
	"math"
)

// DefaultBufferSize is the read buffer size used when none is configured.
const DefaultBufferSize = 64 * 1024

// Unbounded can be passed as maxLen or maxConsume to disable the limit.
const Unbounded = math.MaxInt32

// maxEmptyReads bounds how many times fill retries a reader that returns
// no data and no error.
const maxEmptyReads = 100

// ErrClosed is returned by ReadLine after Close.
var ErrClosed = errors.New("linereader: scanner is closed")

// Scanner extracts delimited lines from a byte stream through a fixed-size
// buffer. It knows nothing about splits or files.
//
// A line ends at '\n', at "\r\n", at a lone '\r', or at end of stream.
// A '\r' that is followed by anything other than '\n' ends the line without
// consuming the following byte, so "\r\r" is two lines.
type Scanner struct {
	rd     io.Reader
	closer io.Closer

	buf []byte
	n   int // valid bytes in buf
	pos int // next unread byte in buf

	// err is the error returned with the last chunk of data; it is reported
	// once the buffered bytes are used up.
	err error

	term   int
	closed bool
}

// NewScanner returns a Scanner reading from rd with the given buffer size.
// If rd is also an io.Closer, Close closes it.
func NewScanner(rd io.Reader, bufferSize int) *Scanner {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	s := &Scanner{
		rd:  rd,
		buf: make([]byte, bufferSize),
	}
	if c, ok := rd.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// ReadLine reads one line into rec, which is cleared first.
//
// At most maxLen bytes of line content are stored; anything past that is
// dropped from rec but still counted in the returned byte count, so callers
// can detect truncation. maxConsume bounds how many bytes a single call
// consumes: when a buffer's worth of data has been scanned without finding
// a terminator and the budget is used up, ReadLine returns early and the
// next call continues the same physical line.
//
// The returned count includes the terminator. It is 0 only at end of
// stream.
func (s *Scanner) ReadLine(rec *Record, maxLen int, maxConsume int64) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	rec.Reset()
	s.term = 0

	var consumed int64
	sawCR := false
	for {
		if s.pos >= s.n {
			more, err := s.fill()
			if err != nil {
				return consumed, fmt.Errorf("linereader: read: %w", err)
			}
			if !more {
				if sawCR {
					s.term = 1
				}
				return consumed, nil
			}
		}

		start := s.pos
		found, newline := false, false
		for s.pos < s.n {
			c := s.buf[s.pos]
			if c == '\n' {
				s.pos++
				found, newline = true, true
				break
			}
			if sawCR {
				// The line ended at the previous '\r'; leave c for the next call.
				found = true
				break
			}
			if c == '\r' {
				sawCR = true
			}
			s.pos++
		}

		chunk := s.buf[start:s.pos]
		consumed += int64(len(chunk))
		if newline {
			chunk = chunk[:len(chunk)-1]
		}
		if sawCR && len(chunk) > 0 && chunk[len(chunk)-1] == '\r' {
			chunk = chunk[:len(chunk)-1]
		}
		rec.appendLimited(chunk, maxLen)

		if found {
			if newline {
				s.term++
			}
			if sawCR {
				s.term++
			}
			return consumed, nil
		}
		if consumed >= maxConsume {
			return consumed, nil
		}
	}
}

// SkipLine consumes bytes through the next terminator without storing them,
// subject to the same maxConsume budget as ReadLine.
func (s *Scanner) SkipLine(maxConsume int64) (int64, error) {
	var discard Record
	return s.ReadLine(&discard, 0, maxConsume)
}

// LastTerminatorLength reports how many terminator bytes ended the line
// returned by the most recent ReadLine: 2 for "\r\n", 1 for '\n' or '\r',
// and 0 when the line ended at end of stream or was cut short by the
// consume budget.
func (s *Scanner) LastTerminatorLength() int {
	return s.term
}

// Close closes the underlying stream if it is closeable. It is safe to call
// more than once.
func (s *Scanner) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.buf = nil
	s.n, s.pos = 0, 0
	if s.closer != nil {
		err := s.closer.Close()
		s.closer = nil
		return err
	}
	return nil
}

// fill refills the buffer. It reports false at end of stream.
func (s *Scanner) fill() (bool, error) {
	s.pos, s.n = 0, 0
	if s.err != nil {
		if errors.Is(s.err, io.EOF) {
			return false, nil
		}
		return false, s.err
	}
	for range maxEmptyReads {
		n, err := s.rd.Read(s.buf)
		s.n = n
		if err != nil {
			s.err = err
		}
		if n > 0 {
			return true, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, err
		}
	}
	s.err = io.ErrNoProgress
	return false, s.err
}
