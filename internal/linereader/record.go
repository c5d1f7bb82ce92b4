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

package linereader

// Record holds one line of text without its terminator. A Record is meant
// to be reused across reads: readers clear it and append into the same
// backing array. Anything that keeps a Record past the next read must
// Clone it.
type Record struct {
	data []byte
}

// NewRecord returns a Record holding a copy of b.
func NewRecord(b []byte) *Record {
	r := &Record{}
	r.Append(b)
	return r
}

// Bytes returns the record contents. The slice is only valid until the
// record is next modified.
func (r *Record) Bytes() []byte {
	return r.data
}

func (r *Record) String() string {
	return string(r.data)
}

func (r *Record) Len() int {
	return len(r.data)
}

// Reset empties the record but keeps its capacity.
func (r *Record) Reset() {
	r.data = r.data[:0]
}

func (r *Record) Append(b []byte) {
	r.data = append(r.data, b...)
}

// Set replaces the record contents with a copy of b.
func (r *Record) Set(b []byte) {
	r.data = append(r.data[:0], b...)
}

// Clone returns a deep copy that does not share storage with r.
func (r *Record) Clone() *Record {
	c := &Record{data: make([]byte, len(r.data))}
	copy(c.data, r.data)
	return c
}

// appendLimited appends as much of b as fits under limit total bytes.
func (r *Record) appendLimited(b []byte, limit int) {
	room := limit - len(r.data)
	if room <= 0 || len(b) == 0 {
		return
	}
	if len(b) > room {
		b = b[:room]
	}
	r.data = append(r.data, b...)
}
