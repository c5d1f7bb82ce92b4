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
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/cardinalhq/linesplit/internal/splits"
	"github.com/cardinalhq/linesplit/internal/storage"
)

// RangeSource supplies the input ranges to be partitioned.
type RangeSource interface {
	Ranges(ctx context.Context) ([]splits.ByteRange, error)
}

// splitSlop lets the final piece of a file run up to 10% over the split
// size instead of leaving a tiny tail piece.
const splitSlop = 1.1

// hidden reports whether a listed name should be ignored.
func hidden(name string) bool {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.HasPrefix(base, "_") || strings.HasPrefix(base, ".")
}

func listInputs(ctx context.Context, fs storage.FileSystem, dirs []string) ([]storage.FileInfo, error) {
	var files []storage.FileInfo
	for _, dir := range dirs {
		listed, err := fs.List(ctx, dir)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", dir, err)
		}
		for _, f := range listed {
			if hidden(f.Path) {
				continue
			}
			files = append(files, f)
		}
	}
	return files, nil
}

// WholeFileSource turns every visible file under Dirs into one range.
type WholeFileSource struct {
	FS   storage.FileSystem
	Dirs []string
}

func (s WholeFileSource) Ranges(ctx context.Context) ([]splits.ByteRange, error) {
	files, err := listInputs(ctx, s.FS, s.Dirs)
	if err != nil {
		return nil, err
	}
	out := make([]splits.ByteRange, 0, len(files))
	for _, f := range files {
		out = append(out, splits.ByteRange{Path: f.Path, Start: 0, Length: f.Length})
	}
	return out, nil
}

// BlockSource pre-splits every visible file under Dirs into pieces of
// SplitSize bytes, or of the file's block size when SplitSize is zero.
type BlockSource struct {
	FS        storage.FileSystem
	Dirs      []string
	SplitSize int64
}

func (s BlockSource) Ranges(ctx context.Context) ([]splits.ByteRange, error) {
	files, err := listInputs(ctx, s.FS, s.Dirs)
	if err != nil {
		return nil, err
	}
	var out []splits.ByteRange
	for _, f := range files {
		size := s.SplitSize
		if size <= 0 {
			size, err = s.blockSize(ctx, f)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, cutPieces(f, size)...)
	}
	return out, nil
}

func (s BlockSource) blockSize(ctx context.Context, f storage.FileInfo) (int64, error) {
	if f.Length == 0 {
		return 0, nil
	}
	blocks, err := s.FS.BlockLocations(ctx, f.Path, 0, f.Length)
	if err != nil {
		return 0, fmt.Errorf("locating blocks of %s: %w", f.Path, err)
	}
	if len(blocks) == 0 {
		return 0, nil
	}
	return blocks[0].Length, nil
}

// cutPieces splits f into pieces of size bytes. A non-positive size yields
// the whole file as one piece.
func cutPieces(f storage.FileInfo, size int64) []splits.ByteRange {
	if size <= 0 || f.Length <= size {
		return []splits.ByteRange{{Path: f.Path, Start: 0, Length: f.Length}}
	}
	var out []splits.ByteRange
	remaining := f.Length
	for float64(remaining)/float64(size) > splitSlop {
		out = append(out, splits.ByteRange{Path: f.Path, Start: f.Length - remaining, Length: size})
		remaining -= size
	}
	if remaining > 0 {
		out = append(out, splits.ByteRange{Path: f.Path, Start: f.Length - remaining, Length: remaining})
	}
	return out
}

// StaticSource returns a fixed list of ranges. Lengths of
// splits.ToEndOfFile are resolved through FS when it is set.
type StaticSource struct {
	FS     storage.FileSystem
	Inputs []splits.ByteRange
}

func (s StaticSource) Ranges(ctx context.Context) ([]splits.ByteRange, error) {
	out := make([]splits.ByteRange, len(s.Inputs))
	copy(out, s.Inputs)
	if s.FS == nil {
		return out, nil
	}
	for i, r := range out {
		if r.Length != splits.ToEndOfFile {
			continue
		}
		size, err := s.FS.FileLength(ctx, r.Path)
		if err != nil {
			return nil, fmt.Errorf("resolving length of %s: %w", r.Path, err)
		}
		out[i].Length = max(size-r.Start, 0)
	}
	return out, nil
}
