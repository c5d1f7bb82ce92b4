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

// Package planner partitions input files into composite splits that
// parallel workers can read independently.
package planner

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/linesplit/internal/shuffle"
	"github.com/cardinalhq/linesplit/internal/splits"
	"github.com/cardinalhq/linesplit/internal/storage"
)

// Planner turns input ranges into CompositeSplits.
type Planner struct {
	cfg    Config
	logger *slog.Logger
	rnd    *rand.Rand
}

type Option func(*Planner)

func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) {
		p.logger = l
	}
}

// WithRand fixes the random source used to shuffle input order.
func WithRand(r *rand.Rand) Option {
	return func(p *Planner) {
		p.rnd = r
	}
}

// New returns a Planner, or a ConfigurationError if cfg cannot be planned
// with.
func New(cfg Config, opts ...Option) (*Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Planner{cfg: cfg, logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Source returns the range source selected by the configuration.
func (p *Planner) Source(fs storage.FileSystem, dirs []string) RangeSource {
	if strings.EqualFold(p.cfg.Source, SourceBlocks) {
		return BlockSource{FS: fs, Dirs: dirs, SplitSize: p.cfg.SplitSize}
	}
	return WholeFileSource{FS: fs, Dirs: dirs}
}

// Plan partitions every input from src into SubSplitCount ranges and groups
// them into splits.
//
// Inputs are taken in batches of MaxSplitsPerComposite. Within a batch the
// ranges are ordered by sub-range index and then by input, and packed into
// splits of at most MaxSplitsPerComposite ranges. A full batch therefore
// yields one split per sub-range index, each holding the matching range of
// every input in the batch. Short batches are not padded.
func (p *Planner) Plan(ctx context.Context, src RangeSource) ([]*splits.CompositeSplit, error) {
	inputs, err := src.Ranges(ctx)
	if err != nil {
		return nil, err
	}
	for _, in := range inputs {
		if in.Length < 0 {
			return nil, &ConfigurationError{Field: "length", Value: in.Length, Reason: "unresolved range length for " + in.Path}
		}
	}

	if p.cfg.ShuffleFileOrder {
		shuffle.InPlace(inputs, p.rnd)
	}

	k := p.cfg.SubSplitCount
	m := p.cfg.MaxSplitsPerComposite

	var out []*splits.CompositeSplit
	for b := 0; b < len(inputs); b += m {
		batch := inputs[b:min(b+m, len(inputs))]

		parts := make([][]splits.ByteRange, len(batch))
		for j, in := range batch {
			parts[j], err = Partition(in, k)
			if err != nil {
				return nil, err
			}
		}

		pending := make([]splits.ByteRange, 0, m)
		for i := range k {
			for j := range batch {
				pending = append(pending, parts[j][i])
				if len(pending) == m {
					out = append(out, splits.New(pending...))
					pending = pending[:0]
				}
			}
		}
		if len(pending) > 0 {
			out = append(out, splits.New(pending...))
		}
	}

	attrs := otelmetric.WithAttributes(attribute.Bool("shuffled", p.cfg.ShuffleFileOrder))
	inputCounter.Add(ctx, int64(len(inputs)), attrs)
	splitCounter.Add(ctx, int64(len(out)), attrs)

	p.logger.Info("Planned splits",
		slog.Int("inputs", len(inputs)),
		slog.Int("splits", len(out)),
		slog.Int("subSplitCount", k),
		slog.Int("maxSplitsPerComposite", m),
		slog.Bool("shuffleFileOrder", p.cfg.ShuffleFileOrder))
	return out, nil
}

// PlanDirs plans the files under dirs using the configured source.
func (p *Planner) PlanDirs(ctx context.Context, fs storage.FileSystem, dirs []string) ([]*splits.CompositeSplit, error) {
	if len(dirs) == 0 {
		return nil, errors.New("planner: no input directories")
	}
	return p.Plan(ctx, p.Source(fs, dirs))
}
