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
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/linesplit/internal/splits"
	"github.com/cardinalhq/linesplit/internal/storage"
)

func TestPartitionCoverage(t *testing.T) {
	for k := 1; k <= 9; k++ {
		for length := int64(0); length <= 200; length++ {
			start := int64(17)
			parts, err := Partition(splits.ByteRange{Path: "f", Start: start, Length: length}, k)
			require.NoError(t, err)
			require.Len(t, parts, k)

			pos := start
			var sum int64
			for i, p := range parts {
				require.Equal(t, pos, p.Start, "k=%d len=%d part=%d", k, length, i)
				require.GreaterOrEqual(t, p.Length, int64(0))
				if i > 0 {
					// Widened ranges come first.
					require.LessOrEqual(t, p.Length, parts[i-1].Length)
				}
				pos += p.Length
				sum += p.Length
			}
			require.Equal(t, length, sum, "k=%d len=%d", k, length)
			require.LessOrEqual(t, parts[0].Length-parts[k-1].Length, int64(1))
		}
	}
}

func TestPartitionExample(t *testing.T) {
	parts, err := Partition(splits.ByteRange{Path: "f", Start: 0, Length: 10}, 4)
	require.NoError(t, err)
	assert.Equal(t, []splits.ByteRange{
		{Path: "f", Start: 0, Length: 3},
		{Path: "f", Start: 3, Length: 3},
		{Path: "f", Start: 6, Length: 2},
		{Path: "f", Start: 8, Length: 2},
	}, parts)
}

func TestPartitionShortRange(t *testing.T) {
	parts, err := Partition(splits.ByteRange{Path: "f", Start: 0, Length: 2}, 4)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 0, 0}, []int64{parts[0].Length, parts[1].Length, parts[2].Length, parts[3].Length})
	assert.Equal(t, int64(2), parts[2].Start)
	assert.Equal(t, int64(2), parts[3].Start)
}

func TestPartitionRejectsBadInput(t *testing.T) {
	_, err := Partition(splits.ByteRange{Path: "f", Length: 10}, 0)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = Partition(splits.ByteRange{Path: "f", Length: splits.ToEndOfFile}, 4)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{SubSplitCount: 0, MaxSplitsPerComposite: -1, Source: "nope", SplitSize: -5})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)

	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	for _, field := range []string{"sub_split_count", "max_splits_per_composite", "source", "split_size"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestPlanSingleFileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	content := make([]byte, 100)
	for i := range content {
		content[i] = byte('a' + i%26)
	}
	path := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	fs := storage.NewLocalFileSystem(0)
	p, err := New(Config{SubSplitCount: 4, MaxSplitsPerComposite: 4})
	require.NoError(t, err)

	out, err := p.PlanDirs(context.Background(), fs, []string{dir})
	require.NoError(t, err)
	require.Len(t, out, 1)

	s := out[0]
	require.Equal(t, 4, s.Len())
	assert.Equal(t, int64(100), s.TotalLength())

	var got []byte
	for _, r := range s.Ranges() {
		got = append(got, content[r.Start:r.End()]...)
	}
	assert.Equal(t, content, got)
}

func TestPlanFullBatches(t *testing.T) {
	var inputs []splits.ByteRange
	for i := range 8 {
		inputs = append(inputs, splits.ByteRange{Path: fmt.Sprintf("f%d", i), Length: 40})
	}
	p, err := New(Config{SubSplitCount: 4, MaxSplitsPerComposite: 4})
	require.NoError(t, err)

	out, err := p.Plan(context.Background(), StaticSource{Inputs: inputs})
	require.NoError(t, err)
	require.Len(t, out, 8)

	for n, s := range out {
		batch, index := n/4, n%4
		require.Equal(t, 4, s.Len())
		for j := range 4 {
			r := s.Range(j)
			assert.Equal(t, fmt.Sprintf("f%d", batch*4+j), r.Path)
			assert.Equal(t, int64(index*10), r.Start)
			assert.Equal(t, int64(10), r.Length)
		}
	}
}

func TestPlanShortLastBatch(t *testing.T) {
	inputs := []splits.ByteRange{
		{Path: "a", Length: 8},
		{Path: "b", Length: 8},
		{Path: "c", Length: 8},
		{Path: "d", Length: 8},
		{Path: "e", Length: 8},
		{Path: "f", Length: 8},
	}
	p, err := New(Config{SubSplitCount: 2, MaxSplitsPerComposite: 4})
	require.NoError(t, err)

	out, err := p.Plan(context.Background(), StaticSource{Inputs: inputs})
	require.NoError(t, err)

	// First batch: 4 inputs x 2 ranges = 2 splits of 4.
	// Second batch: 2 inputs x 2 ranges = 1 split of 4, no padding.
	require.Len(t, out, 3)
	assert.Equal(t, []string{"a", "b", "c", "d"}, out[0].Paths())
	assert.Equal(t, []string{"a", "b", "c", "d"}, out[1].Paths())
	assert.Equal(t, []string{"e", "f", "e", "f"}, out[2].Paths())
	assert.Equal(t, int64(4), out[1].Range(0).Start)
	assert.Equal(t, []int64{0, 0, 4, 4}, starts(out[2]))

	assertCovers(t, inputs, out)
}

func TestPlanUnevenPacking(t *testing.T) {
	inputs := []splits.ByteRange{
		{Path: "a", Length: 5},
		{Path: "b", Length: 7},
		{Path: "c", Length: 3},
	}
	p, err := New(Config{SubSplitCount: 3, MaxSplitsPerComposite: 4})
	require.NoError(t, err)

	out, err := p.Plan(context.Background(), StaticSource{Inputs: inputs})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, 4, out[0].Len())
	assert.Equal(t, 4, out[1].Len())
	assert.Equal(t, 1, out[2].Len())
	for _, s := range out {
		assert.LessOrEqual(t, s.Len(), 4)
	}
	assertCovers(t, inputs, out)
}

func TestPlanShuffleFileOrderIsPermutation(t *testing.T) {
	var inputs []splits.ByteRange
	for i := range 16 {
		inputs = append(inputs, splits.ByteRange{Path: fmt.Sprintf("f%02d", i), Length: int64(10 + i)})
	}
	p, err := New(
		Config{SubSplitCount: 1, MaxSplitsPerComposite: 1, ShuffleFileOrder: true},
		WithRand(rand.New(rand.NewPCG(3, 4))),
	)
	require.NoError(t, err)

	out, err := p.Plan(context.Background(), StaticSource{Inputs: inputs})
	require.NoError(t, err)
	require.Len(t, out, 16)

	var got []string
	for _, s := range out {
		got = append(got, s.Range(0).Path)
	}
	var want []string
	for _, in := range inputs {
		want = append(want, in.Path)
	}
	assert.ElementsMatch(t, want, got)
	assertCovers(t, inputs, out)
}

func TestPlanRejectsUnresolvedLength(t *testing.T) {
	p, err := New(DefaultConfig())
	require.NoError(t, err)

	_, err = p.Plan(context.Background(), StaticSource{Inputs: []splits.ByteRange{{Path: "x", Length: splits.ToEndOfFile}}})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestStaticSourceResolvesToEndOfFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 30)), 0o644))

	src := StaticSource{
		FS:     storage.NewLocalFileSystem(0),
		Inputs: []splits.ByteRange{{Path: path, Start: 10, Length: splits.ToEndOfFile}},
	}
	got, err := src.Ranges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []splits.ByteRange{{Path: path, Start: 10, Length: 20}}, got)
}

func TestWholeFileSourceSkipsHidden(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"a.log":    "aaa",
		"b.log":    "bbbbb",
		"_SUCCESS": "",
		".crc":     "zz",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	got, err := WholeFileSource{FS: storage.NewLocalFileSystem(0), Dirs: []string{dir}}.Ranges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []splits.ByteRange{
		{Path: filepath.Join(dir, "a.log"), Start: 0, Length: 3},
		{Path: filepath.Join(dir, "b.log"), Start: 0, Length: 5},
	}, got)
}

func TestBlockSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("y", 105)), 0o644))
	fs := storage.NewLocalFileSystem(25)

	t.Run("block size", func(t *testing.T) {
		got, err := BlockSource{FS: fs, Dirs: []string{dir}}.Ranges(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int64{0, 25, 50, 75, 100}, rangeStarts(got))
		assert.Equal(t, int64(5), got[4].Length)
	})

	t.Run("split size within slop", func(t *testing.T) {
		// 55/50 is within the slop, so no 5-byte tail piece is cut.
		got, err := BlockSource{FS: fs, Dirs: []string{dir}, SplitSize: 50}.Ranges(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []splits.ByteRange{
			{Path: path, Start: 0, Length: 50},
			{Path: path, Start: 50, Length: 55},
		}, got)
	})

	t.Run("planned through config", func(t *testing.T) {
		p, err := New(Config{SubSplitCount: 2, MaxSplitsPerComposite: 4, Source: SourceBlocks, SplitSize: 50})
		require.NoError(t, err)
		out, err := p.PlanDirs(context.Background(), fs, []string{dir})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, []int64{0, 50, 25, 78}, starts(out[0]))
		assert.Equal(t, int64(105), out[0].TotalLength())
	})
}

func TestCutPiecesEmptyFile(t *testing.T) {
	got := cutPieces(storage.FileInfo{Path: "e", Length: 0}, 10)
	assert.Equal(t, []splits.ByteRange{{Path: "e", Start: 0, Length: 0}}, got)
}

func TestHidden(t *testing.T) {
	assert.True(t, hidden("/x/_logs"))
	assert.True(t, hidden(".part.crc"))
	assert.False(t, hidden("/x/_dir/file"))
	assert.False(t, hidden("logs/part-0000"))
}

func starts(s *splits.CompositeSplit) []int64 {
	return rangeStarts(s.Ranges())
}

func rangeStarts(rs []splits.ByteRange) []int64 {
	out := make([]int64, len(rs))
	for i, r := range rs {
		out[i] = r.Start
	}
	return out
}

// assertCovers checks that the splits cover every input exactly once.
func assertCovers(t *testing.T, inputs []splits.ByteRange, out []*splits.CompositeSplit) {
	t.Helper()
	covered := map[string][]bool{}
	for _, in := range inputs {
		covered[in.Path] = make([]bool, in.Length)
	}
	for _, s := range out {
		for _, r := range s.Ranges() {
			for off := r.Start; off < r.End(); off++ {
				require.False(t, covered[r.Path][off], "%s byte %d covered twice", r.Path, off)
				covered[r.Path][off] = true
			}
		}
	}
	for p, bytes := range covered {
		for off, ok := range bytes {
			require.True(t, ok, "%s byte %d not covered", p, off)
		}
	}
}
