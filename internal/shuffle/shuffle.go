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

// Package shuffle provides the randomized reordering used for sampling:
// a key-tagged in-place sort over any slice, and a single-pass Buffer built
// on top of it.
package shuffle

import (
	"math/rand/v2"
	"sort"
)

// InPlace reorders items at random. Every element is tagged with a fresh
// non-negative random key and the slice is sorted by ascending key, moving
// elements only by swapping. Key collisions are left to the sort.
//
// If r is nil the package-level generator is used.
func InPlace[T any](items []T, r *rand.Rand) {
	if len(items) < 2 {
		return
	}
	keys := make([]int64, len(items))
	for i := range keys {
		keys[i] = randomKey(r)
	}
	sort.Sort(&keyed[T]{items: items, keys: keys})
}

func randomKey(r *rand.Rand) int64 {
	if r == nil {
		return rand.Int64()
	}
	return r.Int64()
}

// keyed sorts items and their keys together.
type keyed[T any] struct {
	items []T
	keys  []int64
}

func (k *keyed[T]) Len() int {
	return len(k.items)
}

func (k *keyed[T]) Less(i, j int) bool {
	return k.keys[i] < k.keys[j]
}

func (k *keyed[T]) Swap(i, j int) {
	k.items[i], k.items[j] = k.items[j], k.items[i]
	k.keys[i], k.keys[j] = k.keys[j], k.keys[i]
}
