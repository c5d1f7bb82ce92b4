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

package splits

import (
	"context"
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/linesplit/internal/storage"
)

// BlockLocator reports block placement for a file region.
type BlockLocator interface {
	BlockLocations(ctx context.Context, path string, offset, length int64) ([]storage.BlockLocation, error)
}

// Locations returns the sorted union of the hosts holding the first block
// of each range. It is a scheduling hint only.
func (s *CompositeSplit) Locations(ctx context.Context, fs BlockLocator) ([]string, error) {
	hosts := mapset.NewThreadUnsafeSet[string]()
	for _, r := range s.ranges {
		blocks, err := fs.BlockLocations(ctx, r.Path, r.Start, r.Length)
		if err != nil {
			return nil, fmt.Errorf("splits: locating %s: %w", r.Path, err)
		}
		if len(blocks) > 0 {
			hosts.Append(blocks[0].Hosts...)
		}
	}
	out := hosts.ToSlice()
	slices.Sort(out)
	return out, nil
}

// Fingerprint is the xxhash64 of the split's wire encoding.
func (s *CompositeSplit) Fingerprint() uint64 {
	b, err := s.MarshalBinary()
	if err != nil {
		return 0
	}
	return xxhash.Sum64(b)
}
