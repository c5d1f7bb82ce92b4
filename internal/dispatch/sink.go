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

// Package dispatch hands planned splits to whatever runs the readers: a
// manifest file for local runs, or a Kafka topic for a worker fleet.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/linesplit/internal/splits"
)

// Sink receives the splits of one plan.
type Sink interface {
	Publish(ctx context.Context, planID string, batch []*splits.CompositeSplit) error
	Close() error
}

var publishedCounter otelmetric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/linesplit/internal/dispatch")

	var err error
	publishedCounter, err = meter.Int64Counter(
		"linesplit.dispatch.splits",
		otelmetric.WithDescription("Number of splits handed to a sink"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create dispatch.splits counter: %w", err))
	}
}

func recordPublished(ctx context.Context, sink string, n int) {
	publishedCounter.Add(ctx, int64(n), otelmetric.WithAttributes(attribute.String("sink", sink)))
}

// ManifestSink writes splits back to back in their wire encoding.
type ManifestSink struct {
	w      io.WriteCloser
	count  int
	closed bool
}

var _ Sink = (*ManifestSink)(nil)

func NewManifestSink(w io.WriteCloser) *ManifestSink {
	return &ManifestSink{w: w}
}

func (m *ManifestSink) Publish(ctx context.Context, planID string, batch []*splits.CompositeSplit) error {
	if m.closed {
		return errSinkClosed
	}
	for i, s := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.WriteTo(m.w); err != nil {
			return fmt.Errorf("dispatch: writing split %d of plan %s: %w", i, planID, err)
		}
	}
	m.count += len(batch)
	recordPublished(ctx, "manifest", len(batch))
	return nil
}

// Count is the number of splits written so far.
func (m *ManifestSink) Count() int {
	return m.count
}

func (m *ManifestSink) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	return m.w.Close()
}

var errSinkClosed = errors.New("dispatch: sink closed")

// ReadManifest decodes every split in r. A manifest cut short inside a split
// fails with an error matching splits.ErrFormat.
func ReadManifest(r io.Reader) ([]*splits.CompositeSplit, error) {
	var out []*splits.CompositeSplit
	for {
		s, err := splits.Decode(r)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("dispatch: reading split %d: %w", len(out), err)
		}
		out = append(out, s)
	}
}
