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
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	linesInCounter        otelmetric.Int64Counter
	linesOutCounter       otelmetric.Int64Counter
	linesTruncatedCounter otelmetric.Int64Counter
	bytesReadCounter      otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/linesplit/internal/recordreader")

	var err error
	linesInCounter, err = meter.Int64Counter(
		"linesplit.reader.lines.in",
		otelmetric.WithDescription("Number of lines read from storage"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create lines.in counter: %w", err))
	}

	linesOutCounter, err = meter.Int64Counter(
		"linesplit.reader.lines.out",
		otelmetric.WithDescription("Number of records delivered to the caller"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create lines.out counter: %w", err))
	}

	linesTruncatedCounter, err = meter.Int64Counter(
		"linesplit.reader.lines.truncated",
		otelmetric.WithDescription("Number of lines skipped for exceeding the maximum line length"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create lines.truncated counter: %w", err))
	}

	bytesReadCounter, err = meter.Int64Counter(
		"linesplit.reader.bytes.read",
		otelmetric.WithDescription("Number of bytes consumed from storage, terminators included"),
		otelmetric.WithUnit("By"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create bytes.read counter: %w", err))
	}
}

func kindAttrs(kind string) otelmetric.MeasurementOption {
	return otelmetric.WithAttributes(attribute.String("kind", kind))
}

// skipTruncated logs and counts a line dropped for being too long.
func skipTruncated(ctx context.Context, logger *slog.Logger, kind, path string, size, pos int64) {
	logger.Info("Skipped truncated line",
		slog.String("path", path),
		slog.Int64("size", size),
		slog.Int64("pos", pos))
	linesTruncatedCounter.Add(ctx, 1, kindAttrs(kind))
}
