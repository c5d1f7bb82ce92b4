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

package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// LocalFileSystem reads from the local disk. It reports synthetic blocks of
// blockSize bytes, all located on this host.
type LocalFileSystem struct {
	blockSize int64
	host      string
}

var _ FileSystem = (*LocalFileSystem)(nil)

func NewLocalFileSystem(blockSize int64) *LocalFileSystem {
	if blockSize <= 0 {
		blockSize = DefaultLocalBlockSize
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return &LocalFileSystem{blockSize: blockSize, host: host}
}

func (l *LocalFileSystem) Open(ctx context.Context, path string) (File, error) {
	f, err := os.Open(path)
	recordOpen(ctx, "local", err)
	if err != nil {
		return nil, localError("open", path, err)
	}
	return f, nil
}

func (l *LocalFileSystem) FileLength(_ context.Context, path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, localError("stat", path, err)
	}
	if fi.IsDir() {
		return 0, fmt.Errorf("storage: %s is a directory", path)
	}
	return fi.Size(), nil
}

func (l *LocalFileSystem) List(_ context.Context, dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, localError("list", dir, err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, localError("stat", filepath.Join(dir, e.Name()), err)
		}
		if !fi.Mode().IsRegular() {
			continue
		}
		files = append(files, FileInfo{
			Path:   filepath.Join(dir, e.Name()),
			Length: fi.Size(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (l *LocalFileSystem) BlockLocations(ctx context.Context, path string, offset, length int64) ([]BlockLocation, error) {
	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("storage: invalid block range %d+%d", offset, length)
	}
	size, err := l.FileLength(ctx, path)
	if err != nil {
		return nil, err
	}

	if size == 0 {
		if offset == 0 {
			return []BlockLocation{{Offset: 0, Length: 0, Hosts: []string{l.host}}}, nil
		}
		return nil, nil
	}
	if offset >= size {
		return nil, nil
	}

	end := min(offset+max(length, 1), size)
	first := offset / l.blockSize
	last := (end - 1) / l.blockSize

	blocks := make([]BlockLocation, 0, last-first+1)
	for b := first; b <= last; b++ {
		start := b * l.blockSize
		blocks = append(blocks, BlockLocation{
			Offset: start,
			Length: min(l.blockSize, size-start),
			Hosts:  []string{l.host},
		})
	}
	return blocks, nil
}

func localError(op, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: %s %s: %w: %w", op, path, ErrNotFound, err)
	}
	return fmt.Errorf("storage: %s %s: %w", op, path, err)
}
