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

package recordreader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cardinalhq/linesplit/internal/linereader"
	"github.com/cardinalhq/linesplit/internal/shuffle"
	"github.com/cardinalhq/linesplit/internal/splits"
)

// SequentialReader reads the lines of one contiguous byte range of one
// file. With shuffling enabled it reads the whole range up front and
// delivers the lines in random order.
type SequentialReader struct {
	ctx    context.Context
	logger *slog.Logger
	path   string
	maxLen int

	start int64
	pos   int64
	end   int64

	scanner *linereader.Scanner
	buffer  *shuffle.Buffer[*linereader.Record]

	exhausted bool
	closed    bool
}

var _ RecordReader = (*SequentialReader)(nil)

// NewSequentialReader opens r.Path and positions the reader at the first
// line owned by r. A zero-length range delivers nothing and opens nothing.
func NewSequentialReader(ctx context.Context, fs Opener, r splits.ByteRange, cfg Config, opts ...Option) (*SequentialReader, error) {
	if r.Length < 0 {
		return nil, fmt.Errorf("recordreader: unresolved length for %s", r.Path)
	}
	o := buildOptions(opts)
	s := &SequentialReader{
		ctx:    ctx,
		logger: o.logger,
		path:   r.Path,
		maxLen: cfg.maxLineLength(),
		start:  r.Start,
		end:    r.End(),
	}
	if r.Length == 0 {
		s.pos = s.start
		s.exhausted = true
		return s, nil
	}

	f, err := fs.Open(ctx, r.Path)
	if err != nil {
		return nil, fmt.Errorf("recordreader: opening %s: %w", r.Path, err)
	}
	if s.start != 0 {
		// Back up one byte so a line starting exactly at start is kept.
		s.start--
		if _, err := f.Seek(s.start, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("recordreader: seeking %s to %d: %w", r.Path, s.start, err)
		}
	}
	s.scanner = linereader.NewScanner(f, cfg.ReadBufferSize)

	if r.Start != 0 {
		n, err := s.scanner.SkipLine(min(linereader.Unbounded, s.end-s.start))
		bytesReadCounter.Add(ctx, n, kindAttrs(KindSequential))
		if err != nil {
			_ = s.scanner.Close()
			return nil, fmt.Errorf("recordreader: skipping first line of %s: %w", r.Path, err)
		}
		s.start += n
	}
	s.pos = s.start

	if cfg.ShuffleEnabled {
		if err := s.fillBuffer(o); err != nil {
			_ = s.scanner.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *SequentialReader) fillBuffer(o options) error {
	if o.rnd != nil {
		s.buffer = shuffle.NewBufferWithRand[*linereader.Record](o.rnd)
	} else {
		s.buffer = shuffle.NewBuffer[*linereader.Record]()
	}
	var rec linereader.Record
	pos := s.pos
	for pos < s.end {
		n, err := s.scanner.ReadLine(&rec, s.maxLen, budget(s.end, pos, s.maxLen))
		bytesReadCounter.Add(s.ctx, n, kindAttrs(KindSequential))
		if err != nil {
			return fmt.Errorf("recordreader: reading %s at %d: %w", s.path, pos, err)
		}
		if n == 0 {
			break
		}
		pos += n
		if n >= int64(s.maxLen) {
			skipTruncated(s.ctx, s.logger, KindSequential, s.path, n, pos-n)
			continue
		}
		linesInCounter.Add(s.ctx, 1, kindAttrs(KindSequential))
		s.buffer.Append(rec.Clone())
	}
	s.buffer.Shuffle()
	return nil
}

func (s *SequentialReader) CreateKey() *Key {
	return &Key{}
}

func (s *SequentialReader) CreateRecord() *linereader.Record {
	return &linereader.Record{}
}

func (s *SequentialReader) Next(key *Key, rec *linereader.Record) (bool, error) {
	if s.closed {
		return false, linereader.ErrClosed
	}
	if s.exhausted {
		rec.Reset()
		return false, nil
	}
	if s.buffer != nil {
		return s.nextBuffered(key, rec), nil
	}

	for s.pos < s.end {
		key.Offset = s.pos
		n, err := s.scanner.ReadLine(rec, s.maxLen, budget(s.end, s.pos, s.maxLen))
		s.pos += n
		bytesReadCounter.Add(s.ctx, n, kindAttrs(KindSequential))
		if err != nil {
			return false, fmt.Errorf("recordreader: reading %s at %d: %w", s.path, s.pos-n, err)
		}
		if n == 0 {
			break
		}
		if n < int64(s.maxLen) {
			linesInCounter.Add(s.ctx, 1, kindAttrs(KindSequential))
			linesOutCounter.Add(s.ctx, 1, kindAttrs(KindSequential))
			return true, nil
		}
		skipTruncated(s.ctx, s.logger, KindSequential, s.path, n, s.pos-n)
	}
	s.exhausted = true
	rec.Reset()
	return false, nil
}

func (s *SequentialReader) nextBuffered(key *Key, rec *linereader.Record) bool {
	key.Offset = s.pos
	v, ok := s.buffer.Next()
	if !ok {
		s.exhausted = true
		rec.Reset()
		return false
	}
	rec.Set(v.Bytes())
	s.pos += int64(rec.Len())
	linesOutCounter.Add(s.ctx, 1, kindAttrs(KindSequential))
	return true
}

// Progress is the fraction of the range consumed, and 1 once the range is
// exhausted. In shuffle mode the numerator counts delivered record bytes
// only.
func (s *SequentialReader) Progress() float32 {
	if s.exhausted {
		return 1
	}
	if s.start == s.end {
		return 0
	}
	return min(1, max(0, float32(s.pos-s.start)/float32(s.end-s.start)))
}

// Position is the offset of the next unread line, or in shuffle mode the
// owned start plus the record bytes delivered so far.
func (s *SequentialReader) Position() int64 {
	return s.pos
}

func (s *SequentialReader) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.buffer = nil
	if s.scanner == nil {
		return nil
	}
	if err := s.scanner.Close(); err != nil && !errors.Is(err, linereader.ErrClosed) {
		return fmt.Errorf("recordreader: closing %s: %w", s.path, err)
	}
	return nil
}
