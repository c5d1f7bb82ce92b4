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

// Package recordreader reads text lines out of the byte ranges described by
// a CompositeSplit.
//
// Adjacent ranges agree on which of them reads a line that straddles their
// shared boundary. The sequential reader owns the lines that start inside
// [start, end): it discards everything up to the first terminator at or
// after start-1. The composite reader owns the lines that start inside
// (start, end]: it discards everything up to the first terminator at or
// after start, and reads one extra line when its range ends exactly on a
// line boundary. Either policy delivers every line once when all ranges of
// a job are read the same way. Mixing them is only exact when a boundary
// falls strictly inside a line, so the reader kind is a per-job setting.
package recordreader

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/cardinalhq/linesplit/internal/linereader"
	"github.com/cardinalhq/linesplit/internal/splits"
	"github.com/cardinalhq/linesplit/internal/storage"
)

const (
	KindComposite  = "composite"
	KindSequential = "sequential"
)

// Key identifies a record. For sequential reads it is the byte offset of
// the line in its file; for composite reads it is the number of record
// bytes delivered before it.
type Key struct {
	Offset int64
}

// RecordReader is the contract offered to whatever executes a split.
type RecordReader interface {
	CreateKey() *Key
	CreateRecord() *linereader.Record

	// Next fills key and rec with the next record. It returns false once
	// the split is exhausted.
	Next(key *Key, rec *linereader.Record) (bool, error)

	// Progress is a fraction in [0, 1].
	Progress() float32
	Position() int64

	// Close releases the underlying streams. It is idempotent; Next after
	// Close returns linereader.ErrClosed.
	Close() error
}

// Opener opens a file for reading.
type Opener interface {
	Open(ctx context.Context, path string) (storage.File, error)
}

// Config controls how records are read.
type Config struct {
	// Kind is "composite" or "sequential".
	Kind string `mapstructure:"kind"`

	ShuffleEnabled bool `mapstructure:"shuffle_enabled"`

	// MaxLineLength is the longest line delivered; longer lines are
	// skipped. Zero means unbounded.
	MaxLineLength int `mapstructure:"max_line_length"`

	ReadBufferSize int `mapstructure:"read_buffer_size"`
}

func DefaultConfig() Config {
	return Config{
		Kind:           KindComposite,
		ReadBufferSize: linereader.DefaultBufferSize,
	}
}

func (c Config) maxLineLength() int {
	if c.MaxLineLength <= 0 || c.MaxLineLength > linereader.Unbounded {
		return linereader.Unbounded
	}
	return c.MaxLineLength
}

type options struct {
	logger *slog.Logger
	rnd    *rand.Rand
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRand fixes the random source used when shuffling records.
func WithRand(r *rand.Rand) Option {
	return func(o *options) {
		o.rnd = r
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// New returns the reader selected by cfg.Kind for split.
func New(ctx context.Context, fs Opener, split *splits.CompositeSplit, cfg Config, opts ...Option) (RecordReader, error) {
	switch strings.ToLower(cfg.Kind) {
	case KindComposite, "":
		return NewCompositeReader(ctx, fs, split, cfg, opts...)
	case KindSequential:
		return NewChainReader(ctx, fs, split, cfg, opts...), nil
	default:
		return nil, fmt.Errorf("recordreader: unknown reader kind %q", cfg.Kind)
	}
}

// budget is the consume limit for a read that must not start past end.
func budget(end, pos int64, maxLen int) int64 {
	return max(min(linereader.Unbounded, end-pos), int64(maxLen))
}
