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

	"github.com/cardinalhq/linesplit/internal/linereader"
	"github.com/cardinalhq/linesplit/internal/splits"
)

// ChainReader reads a CompositeSplit one range at a time, with a
// SequentialReader per range. Only one file is open at a time.
type ChainReader struct {
	ctx   context.Context
	fs    Opener
	split *splits.CompositeSplit
	cfg   Config
	opts  []Option

	next    int
	current *SequentialReader

	// lastPos is the position of the most recently finished range.
	lastPos int64

	exhausted bool
	closed    bool
}

var _ RecordReader = (*ChainReader)(nil)

func NewChainReader(ctx context.Context, fs Opener, split *splits.CompositeSplit, cfg Config, opts ...Option) *ChainReader {
	return &ChainReader{ctx: ctx, fs: fs, split: split, cfg: cfg, opts: opts}
}

func (c *ChainReader) CreateKey() *Key {
	return &Key{}
}

func (c *ChainReader) CreateRecord() *linereader.Record {
	return &linereader.Record{}
}

func (c *ChainReader) Next(key *Key, rec *linereader.Record) (bool, error) {
	if c.closed {
		return false, linereader.ErrClosed
	}
	for {
		if c.current == nil {
			if c.next >= c.split.Len() {
				c.exhausted = true
				rec.Reset()
				return false, nil
			}
			r, err := NewSequentialReader(c.ctx, c.fs, c.split.Range(c.next), c.cfg, c.opts...)
			if err != nil {
				return false, err
			}
			c.current = r
			c.next++
		}

		ok, err := c.current.Next(key, rec)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if err := c.finishCurrent(); err != nil {
			return false, err
		}
	}
}

func (c *ChainReader) finishCurrent() error {
	c.lastPos = c.current.Position()
	err := c.current.Close()
	c.current = nil
	return err
}

// Progress weighs each range by its length, and is 1 once every range is
// done.
func (c *ChainReader) Progress() float32 {
	if c.exhausted {
		return 1
	}
	total := c.split.TotalLength()
	if total <= 0 {
		return 0
	}
	var done int64
	for i := range c.next {
		done += c.split.Range(i).Length
	}
	if c.current != nil {
		r := c.split.Range(c.next - 1)
		done -= r.Length
		done += int64(c.current.Progress() * float32(r.Length))
	}
	return min(1, float32(done)/float32(total))
}

// Position is the position within the range being read, or within the
// last finished range between ranges.
func (c *ChainReader) Position() int64 {
	if c.current == nil {
		return c.lastPos
	}
	return c.current.Position()
}

func (c *ChainReader) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.current == nil {
		return nil
	}
	err := c.current.Close()
	c.current = nil
	return err
}
