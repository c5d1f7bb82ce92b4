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

// Package splits defines the work unit handed to a record reader: an
// ordered list of byte ranges, possibly across several files, together with
// its binary wire format.
package splits

import (
	"fmt"
	"strings"
)

// ToEndOfFile is a ByteRange length meaning "through the end of the file".
// It is only valid before file sizes are known; the planner resolves it
// before emitting a split.
const ToEndOfFile int64 = -1

// ByteRange is a contiguous run of bytes in one file. Start is inclusive.
type ByteRange struct {
	Path   string `json:"path" yaml:"path"`
	Start  int64  `json:"start" yaml:"start"`
	Length int64  `json:"length" yaml:"length"`
}

// End returns the exclusive end offset of the range.
func (r ByteRange) End() int64 {
	return r.Start + r.Length
}

// CompositeSplit is an immutable, ordered list of byte ranges. Range order is
// the read order.
type CompositeSplit struct {
	ranges []ByteRange
	total  int64
}

// New returns a split over a copy of ranges.
func New(ranges ...ByteRange) *CompositeSplit {
	s := &CompositeSplit{ranges: make([]ByteRange, len(ranges))}
	copy(s.ranges, ranges)
	for _, r := range s.ranges {
		s.total += r.Length
	}
	return s
}

// Ranges returns a copy of the split's ranges.
func (s *CompositeSplit) Ranges() []ByteRange {
	out := make([]ByteRange, len(s.ranges))
	copy(out, s.ranges)
	return out
}

// Range returns the i-th range.
func (s *CompositeSplit) Range(i int) ByteRange {
	return s.ranges[i]
}

// Len returns the number of ranges.
func (s *CompositeSplit) Len() int {
	return len(s.ranges)
}

// TotalLength is the sum of all range lengths.
func (s *CompositeSplit) TotalLength() int64 {
	return s.total
}

// Paths returns the path of each range, in order.
func (s *CompositeSplit) Paths() []string {
	out := make([]string, len(s.ranges))
	for i, r := range s.ranges {
		out[i] = r.Path
	}
	return out
}

func (s *CompositeSplit) String() string {
	var sb strings.Builder
	for i, r := range s.ranges {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s: Offset: %d : Length: %d", r.Path, r.Start, r.Length)
	}
	return sb.String()
}
