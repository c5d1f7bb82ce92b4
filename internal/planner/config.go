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
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// ErrConfiguration is matched by every ConfigurationError.
var ErrConfiguration = errors.New("invalid split configuration")

// ConfigurationError reports a setting that makes planning impossible.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid split configuration: %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

const (
	SourceWhole  = "whole"
	SourceBlocks = "blocks"
)

// Config controls how inputs are partitioned and grouped.
type Config struct {
	// SubSplitCount is the number of ranges each input is cut into.
	SubSplitCount int `mapstructure:"sub_split_count"`

	// MaxSplitsPerComposite caps the number of ranges in one split, and is
	// the number of inputs grouped into one batch.
	MaxSplitsPerComposite int `mapstructure:"max_splits_per_composite"`

	// ShuffleFileOrder randomizes input order before partitioning.
	ShuffleFileOrder bool `mapstructure:"shuffle_file_order"`

	// Source selects the range source: "whole" or "blocks".
	Source string `mapstructure:"source"`

	// SplitSize overrides the block size used by the "blocks" source.
	SplitSize int64 `mapstructure:"split_size"`
}

func DefaultConfig() Config {
	return Config{
		SubSplitCount:         4,
		MaxSplitsPerComposite: 4,
		Source:                SourceWhole,
	}
}

// Validate returns every problem with c, combined.
func (c Config) Validate() error {
	var result *multierror.Error
	if c.SubSplitCount <= 0 {
		result = multierror.Append(result, &ConfigurationError{
			Field: "sub_split_count", Value: c.SubSplitCount, Reason: "must be at least 1",
		})
	}
	if c.MaxSplitsPerComposite <= 0 {
		result = multierror.Append(result, &ConfigurationError{
			Field: "max_splits_per_composite", Value: c.MaxSplitsPerComposite, Reason: "must be at least 1",
		})
	}
	switch strings.ToLower(c.Source) {
	case "", SourceWhole, SourceBlocks:
	default:
		result = multierror.Append(result, &ConfigurationError{
			Field: "source", Value: c.Source, Reason: `must be "whole" or "blocks"`,
		})
	}
	if c.SplitSize < 0 {
		result = multierror.Append(result, &ConfigurationError{
			Field: "split_size", Value: c.SplitSize, Reason: "must not be negative",
		})
	}
	return result.ErrorOrNil()
}
