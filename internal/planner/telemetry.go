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

package planner

import (
	"fmt"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	splitCounter otelmetric.Int64Counter
	inputCounter otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/linesplit/internal/planner")

	var err error
	splitCounter, err = meter.Int64Counter(
		"linesplit.planner.splits",
		otelmetric.WithDescription("Number of composite splits produced by the planner"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create planner.splits counter: %w", err))
	}

	inputCounter, err = meter.Int64Counter(
		"linesplit.planner.inputs",
		otelmetric.WithDescription("Number of input ranges partitioned by the planner"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create planner.inputs counter: %w", err))
	}
}
