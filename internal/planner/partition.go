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
	"github.com/cardinalhq/linesplit/internal/splits"
)

// Partition cuts r into k contiguous sub-ranges whose lengths sum to
// r.Length. The remainder is spread one byte at a time over the leading
// sub-ranges, so sub-range i starts at r.Start + i*base + min(i, rem).
//
// Ranges shorter than k bytes still yield k sub-ranges, some of them
// empty.
func Partition(r splits.ByteRange, k int) ([]splits.ByteRange, error) {
	if k <= 0 {
		return nil, &ConfigurationError{Field: "sub_split_count", Value: k, Reason: "must be at least 1"}
	}
	if r.Length < 0 {
		return nil, &ConfigurationError{Field: "length", Value: r.Length, Reason: "unresolved range length for " + r.Path}
	}

	kk := int64(k)
	base := r.Length / kk
	rem := r.Length % kk

	out := make([]splits.ByteRange, k)
	for i := range kk {
		length := base
		if i < rem {
			length++
		}
		out[i] = splits.ByteRange{
			Path:   r.Path,
			Start:  r.Start + i*base + min(i, rem),
			Length: length,
		}
	}
	return out, nil
}
