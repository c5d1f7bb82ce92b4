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

// CompositeReader reads every range of a CompositeSplit into memory when it
// is created, then delivers the lines from memory, shuffled if configured.
type CompositeReader struct {
	ctx    context.Context
	logger *slog.Logger
	maxLen int
	bufSz  int

	buffer *shuffle.Buffer[*linereader.Record]

	// totalRead is every byte consumed while buffering, read-ahead included.
	totalRead int64
	delivered int64
	progress  float32

	exhausted bool
	closed    bool
}

var _ RecordReader = (*CompositeReader)(nil)

// NewCompositeReader buffers all ranges of split. Ranges are read strictly
// in order and each file is closed as soon as its range is done.
func NewCompositeReader(ctx context.Context, fs Opener, split *splits.CompositeSplit, cfg Config, opts ...Option) (*CompositeReader, error) {
	o := buildOptions(opts)
	c := &CompositeReader{
		ctx:    ctx,
		logger: o.logger,
		maxLen: cfg.maxLineLength(),
		bufSz:  cfg.ReadBufferSize,
	}
	if o.rnd != nil {
		c.buffer = shuffle.NewBufferWithRand[*linereader.Record](o.rnd)
	} else {
		c.buffer = shuffle.NewBuffer[*linereader.Record]()
	}

	for i := range split.Len() {
		if err := c.readRange(ctx, fs, split.Range(i)); err != nil {
			c.buffer = nil
			return nil, err
		}
	}

	if cfg.ShuffleEnabled {
		c.buffer.Shuffle()
	}
	c.logger.Debug("Buffered composite split",
		slog.Int("ranges", split.Len()),
		slog.Int("records", c.buffer.Len()),
		slog.Int64("bytesRead", c.totalRead),
		slog.Bool("shuffled", cfg.ShuffleEnabled))
	return c, nil
}

func (c *CompositeReader) readRange(ctx context.Context, fs Opener, r splits.ByteRange) (err error) {
	if r.Length < 0 {
		return fmt.Errorf("recordreader: unresolved length for %s", r.Path)
	}
	if r.Length == 0 {
		return nil
	}

	f, err := fs.Open(ctx, r.Path)
	if err != nil {
		return fmt.Errorf("recordreader: opening %s: %w", r.Path, err)
	}
	start, end := r.Start, r.End()
	if start != 0 {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			return errors.Join(
				fmt.Errorf("recordreader: seeking %s to %d: %w", r.Path, start, err),
				f.Close())
		}
	}
	sc := linereader.NewScanner(f, c.bufSz)
	defer func() {
		if cerr := sc.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("recordreader: closing %s: %w", r.Path, cerr))
		}
	}()

	attrs := kindAttrs(KindComposite)
	if start != 0 {
		// Skip through the terminator however far it is. Stopping early on a
		// budget can leave pos on end inside the line, and the read-ahead
		// would then deliver the line's tail.
		n, err := sc.SkipLine(linereader.Unbounded)
		c.totalRead += n
		bytesReadCounter.Add(ctx, n, attrs)
		if err != nil {
			return fmt.Errorf("recordreader: skipping first line of %s: %w", r.Path, err)
		}
		start += n
	}

	var rec linereader.Record
	pos := start
	for pos < end {
		n, err := sc.ReadLine(&rec, c.maxLen, budget(end, pos, c.maxLen))
		c.totalRead += n
		bytesReadCounter.Add(ctx, n, attrs)
		if err != nil {
			return fmt.Errorf("recordreader: reading %s at %d: %w", r.Path, pos, err)
		}
		if n == 0 {
			break
		}
		pos += n
		c.keep(&rec, r.Path, n, pos-n)
	}

	// The next range discards its first line, so a range ending exactly on
	// a line boundary reads that line here.
	if pos == end {
		n, err := sc.ReadLine(&rec, c.maxLen, linereader.Unbounded)
		c.totalRead += n
		bytesReadCounter.Add(ctx, n, attrs)
		if err != nil {
			return fmt.Errorf("recordreader: reading ahead in %s at %d: %w", r.Path, pos, err)
		}
		if n != 0 {
			c.keep(&rec, r.Path, n, pos)
		}
	}
	return nil
}

func (c *CompositeReader) keep(rec *linereader.Record, path string, n, pos int64) {
	if n >= int64(c.maxLen) {
		skipTruncated(c.ctx, c.logger, KindComposite, path, n, pos)
		return
	}
	linesInCounter.Add(c.ctx, 1, kindAttrs(KindComposite))
	c.buffer.Append(rec.Clone())
}

func (c *CompositeReader) CreateKey() *Key {
	return &Key{}
}

func (c *CompositeReader) CreateRecord() *linereader.Record {
	return &linereader.Record{}
}

func (c *CompositeReader) Next(key *Key, rec *linereader.Record) (bool, error) {
	if c.closed {
		return false, linereader.ErrClosed
	}
	key.Offset = c.delivered
	if c.exhausted {
		rec.Reset()
		return false, nil
	}
	v, ok := c.buffer.Next()
	if !ok {
		c.exhausted = true
		rec.Reset()
		return false, nil
	}
	rec.Set(v.Bytes())
	c.delivered += int64(rec.Len())
	linesOutCounter.Add(c.ctx, 1, kindAttrs(KindComposite))
	return true, nil
}

// Progress is delivered record bytes over the bytes read while buffering,
// and 1 once the records are exhausted. It keeps its last value while the
// total is unknown.
func (c *CompositeReader) Progress() float32 {
	switch {
	case c.exhausted:
		c.progress = 1
	case c.totalRead <= 0:
	default:
		c.progress = min(1, float32(c.delivered)/float32(c.totalRead))
	}
	return c.progress
}

// Position is the number of record bytes delivered so far.
func (c *CompositeReader) Position() int64 {
	return c.delivered
}

// Len is the number of buffered records.
func (c *CompositeReader) Len() int {
	if c.buffer == nil {
		return 0
	}
	return c.buffer.Len()
}

// Close drops the buffered records. Every file was already closed while
// buffering.
func (c *CompositeReader) Close() error {
	c.closed = true
	c.buffer = nil
	return nil
}
