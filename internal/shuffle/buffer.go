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

package shuffle

import (
	"math/rand/v2"
)

// Buffer is an append-only sequence that is populated completely, shuffled
// at most once, and then drained front to back with Next.
//
// Population and draining do not interleave: Append panics once Shuffle
// has been called or the cursor has moved.
type Buffer[T any] struct {
	items    []T
	cursor   int
	shuffled bool
	draining bool
	rnd      *rand.Rand
}

// NewBuffer returns an empty Buffer that draws keys from the package-level
// generator.
func NewBuffer[T any]() *Buffer[T] {
	return &Buffer[T]{}
}

// NewBufferWithRand returns an empty Buffer that draws keys from r.
func NewBufferWithRand[T any](r *rand.Rand) *Buffer[T] {
	return &Buffer[T]{rnd: r}
}

// Append adds an item. Callers must pass values they no longer mutate;
// reused byte buffers need to be copied first.
func (b *Buffer[T]) Append(item T) {
	if b.shuffled || b.draining {
		panic("shuffle: Append after Shuffle or Next")
	}
	b.items = append(b.items, item)
}

// Len returns the number of stored items.
func (b *Buffer[T]) Len() int {
	return len(b.items)
}

// Shuffle assigns each stored item a fresh random key and reorders storage
// by ascending key. Only the first call has any effect.
func (b *Buffer[T]) Shuffle() {
	if b.shuffled {
		return
	}
	b.shuffled = true
	InPlace(b.items, b.rnd)
}

// Next returns the item under the cursor and advances it. When the cursor
// is past the end, Next returns false and rewinds the cursor to 0.
//
// The rewind is not a supported way to iterate twice: readers drain the
// buffer exactly once and stop at the first false.
func (b *Buffer[T]) Next() (T, bool) {
	b.draining = true
	if b.cursor < len(b.items) {
		item := b.items[b.cursor]
		b.cursor++
		return item, true
	}
	b.cursor = 0
	var zero T
	return zero, false
}
