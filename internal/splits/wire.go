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
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// ErrFormat is matched by every error describing a malformed encoding.
var ErrFormat = errors.New("splits: malformed split")

// FormatError describes why an encoded split could not be decoded.
type FormatError struct {
	// Offset is the number of bytes consumed when decoding failed.
	Offset int64
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("splits: malformed split at byte %d: %s", e.Offset, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Encoding, all integers big-endian:
//
//	total_length i64
//	path_count   i32, then path_count x (len i32, utf-8 bytes)
//	offset_count i32, then offset_count x i64
//	length_count i32, then length_count x i64

// MarshalBinary encodes the split in its wire format.
func (s *CompositeSplit) MarshalBinary() ([]byte, error) {
	if len(s.ranges) > math.MaxInt32 {
		return nil, fmt.Errorf("splits: too many ranges to encode: %d", len(s.ranges))
	}
	size := 8 + 3*4 + 16*len(s.ranges)
	for _, r := range s.ranges {
		if len(r.Path) > math.MaxInt32 {
			return nil, fmt.Errorf("splits: path too long to encode: %d bytes", len(r.Path))
		}
		size += 4 + len(r.Path)
	}

	n := uint32(len(s.ranges))
	b := make([]byte, 0, size)
	b = binary.BigEndian.AppendUint64(b, uint64(s.total))
	b = binary.BigEndian.AppendUint32(b, n)
	for _, r := range s.ranges {
		b = binary.BigEndian.AppendUint32(b, uint32(len(r.Path)))
		b = append(b, r.Path...)
	}
	b = binary.BigEndian.AppendUint32(b, n)
	for _, r := range s.ranges {
		b = binary.BigEndian.AppendUint64(b, uint64(r.Start))
	}
	b = binary.BigEndian.AppendUint32(b, n)
	for _, r := range s.ranges {
		b = binary.BigEndian.AppendUint64(b, uint64(r.Length))
	}
	return b, nil
}

// WriteTo writes the wire encoding of the split to w.
func (s *CompositeSplit) WriteTo(w io.Writer) (int64, error) {
	b, err := s.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}

// UnmarshalBinary decodes exactly one split from data. Trailing bytes are a
// format error.
func (s *CompositeSplit) UnmarshalBinary(data []byte) error {
	d := &decoder{r: bytes.NewReader(data)}
	decoded, err := d.split()
	if errors.Is(err, io.EOF) {
		return &FormatError{Reason: "empty input", Err: io.ErrUnexpectedEOF}
	}
	if err != nil {
		return err
	}
	if d.n != int64(len(data)) {
		return &FormatError{Offset: d.n, Reason: fmt.Sprintf("%d trailing bytes", int64(len(data))-d.n)}
	}
	*s = *decoded
	return nil
}

// ReadFrom decodes one split from r, leaving r positioned just past it, so
// that concatenated splits can be read one after another. It returns io.EOF
// when r is already at end of stream.
func (s *CompositeSplit) ReadFrom(r io.Reader) (int64, error) {
	d := &decoder{r: r}
	decoded, err := d.split()
	if err != nil {
		return d.n, err
	}
	*s = *decoded
	return d.n, nil
}

// Decode reads the next split from r. See ReadFrom.
func Decode(r io.Reader) (*CompositeSplit, error) {
	s := &CompositeSplit{}
	if _, err := s.ReadFrom(r); err != nil {
		return nil, err
	}
	return s, nil
}

type decoder struct {
	r   io.Reader
	n   int64
	buf [8]byte
}

func (d *decoder) split() (*CompositeSplit, error) {
	first, err := io.ReadFull(d.r, d.buf[:8])
	d.n += int64(first)
	if err != nil {
		if first == 0 && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, d.readErr("total_length", err)
	}
	total := int64(binary.BigEndian.Uint64(d.buf[:8]))

	pathCount, err := d.count("path_count")
	if err != nil {
		return nil, err
	}
	ranges := make([]ByteRange, 0, min(pathCount, 1024))
	for i := range pathCount {
		p, err := d.path(i)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, ByteRange{Path: p})
	}

	offsetCount, err := d.count("offset_count")
	if err != nil {
		return nil, err
	}
	if offsetCount != pathCount {
		return nil, d.fail(fmt.Sprintf("offset_count %d does not match path_count %d", offsetCount, pathCount))
	}
	for i := range ranges {
		v, err := d.i64("offset")
		if err != nil {
			return nil, err
		}
		ranges[i].Start = v
	}

	lengthCount, err := d.count("length_count")
	if err != nil {
		return nil, err
	}
	if lengthCount != pathCount {
		return nil, d.fail(fmt.Sprintf("length_count %d does not match path_count %d", lengthCount, pathCount))
	}
	var sum int64
	for i := range ranges {
		v, err := d.i64("length")
		if err != nil {
			return nil, err
		}
		ranges[i].Length = v
		sum += v
	}

	if sum != total {
		return nil, d.fail(fmt.Sprintf("total_length %d does not match sum of lengths %d", total, sum))
	}
	return &CompositeSplit{ranges: ranges, total: total}, nil
}

func (d *decoder) count(field string) (int, error) {
	if err := d.read(d.buf[:4], field); err != nil {
		return 0, err
	}
	n := int32(binary.BigEndian.Uint32(d.buf[:4]))
	if n < 0 {
		return 0, d.fail(fmt.Sprintf("negative %s %d", field, n))
	}
	return int(n), nil
}

func (d *decoder) i64(field string) (int64, error) {
	if err := d.read(d.buf[:8], field); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(d.buf[:8])), nil
}

func (d *decoder) path(i int) (string, error) {
	if err := d.read(d.buf[:4], "path length"); err != nil {
		return "", err
	}
	n := int32(binary.BigEndian.Uint32(d.buf[:4]))
	if n < 0 {
		return "", d.fail(fmt.Sprintf("negative length %d for path %d", n, i))
	}
	var sb bytes.Buffer
	copied, err := io.CopyN(&sb, d.r, int64(n))
	d.n += copied
	if err != nil {
		return "", d.readErr("path", err)
	}
	if !utf8.Valid(sb.Bytes()) {
		return "", d.fail(fmt.Sprintf("path %d is not valid UTF-8", i))
	}
	return sb.String(), nil
}

func (d *decoder) read(p []byte, field string) error {
	m, err := io.ReadFull(d.r, p)
	d.n += int64(m)
	if err != nil {
		return d.readErr(field, err)
	}
	return nil
}

func (d *decoder) readErr(field string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &FormatError{Offset: d.n, Reason: "truncated " + field, Err: io.ErrUnexpectedEOF}
	}
	return fmt.Errorf("splits: reading %s: %w", field, err)
}

func (d *decoder) fail(reason string) error {
	return &FormatError{Offset: d.n, Reason: reason}
}
