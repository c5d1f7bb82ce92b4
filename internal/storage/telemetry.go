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

package storage

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	openCounter      otelmetric.Int64Counter
	openErrorCounter otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/linesplit/internal/storage")

	var err error
	openCounter, err = meter.Int64Counter(
		"linesplit.storage.open.count",
		otelmetric.WithDescription("Number of files opened for reading"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create open.count counter: %w", err))
	}

	openErrorCounter, err = meter.Int64Counter(
		"linesplit.storage.open.errors",
		otelmetric.WithDescription("Number of failed attempts to open or fetch a file"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create open.errors counter: %w", err))
	}
}

func recordOpen(ctx context.Context, provider string, err error) {
	attrs := otelmetric.WithAttributes(attribute.String("provider", provider))
	if err != nil {
		openErrorCounter.Add(ctx, 1, attrs)
		return
	}
	openCounter.Add(ctx, 1, attrs)
}
