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

// Package storage provides the filesystem seen by the split planner and the
// record readers: open for reading at an offset, file lengths, directory
// listings and block placement.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound is matched by errors returned for paths that do not exist.
var ErrNotFound = errors.New("storage: not found")

// File is an open, seekable input stream.
type File interface {
	io.Reader
	io.Seeker
	io.Closer
}

// FileInfo describes one listed file.
type FileInfo struct {
	Path   string
	Length int64
}

// BlockLocation describes where one block of a file lives. Object stores
// report a single block with no hosts.
type BlockLocation struct {
	Offset int64
	Length int64
	Hosts  []string
}

// FileSystem is the storage abstraction used throughout linesplit.
type FileSystem interface {
	// Open opens path for reading, positioned at offset 0.
	Open(ctx context.Context, path string) (File, error)

	// FileLength returns the size of path in bytes.
	FileLength(ctx context.Context, path string) (int64, error)

	// List returns the files directly under dir, sorted by path.
	// Subdirectories are not descended into.
	List(ctx context.Context, dir string) ([]FileInfo, error)

	// BlockLocations returns the blocks of path that overlap
	// [offset, offset+length).
	BlockLocations(ctx context.Context, path string, offset, length int64) ([]BlockLocation, error)
}

// Config selects and configures a FileSystem implementation.
type Config struct {
	// Provider is one of "local", "s3", "gcs" or "azure".
	Provider string `mapstructure:"provider"`

	// Bucket is the S3 or GCS bucket, or the Azure container.
	Bucket string `mapstructure:"bucket"`

	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`

	// Role is an IAM role ARN to assume on S3, or a service account to
	// impersonate on GCS.
	Role string `mapstructure:"role"`

	// BlockSize is the synthetic block size reported by the local
	// filesystem.
	BlockSize int64 `mapstructure:"block_size"`

	AzureAccountURL string `mapstructure:"azure_account_url"`
}

const DefaultLocalBlockSize = 32 * 1024 * 1024

func DefaultConfig() Config {
	return Config{
		Provider:  "local",
		BlockSize: DefaultLocalBlockSize,
	}
}

// New builds the FileSystem described by cfg.
func New(ctx context.Context, cfg Config) (FileSystem, error) {
	switch strings.ToLower(cfg.Provider) {
	case "local", "":
		return NewLocalFileSystem(cfg.BlockSize), nil
	case "s3", "aws":
		if cfg.Bucket == "" {
			return nil, errors.New("storage: s3 provider requires a bucket")
		}
		return NewS3FileSystem(ctx, cfg)
	case "gcs", "gcp":
		if cfg.Bucket == "" {
			return nil, errors.New("storage: gcs provider requires a bucket")
		}
		return NewGCSFileSystem(ctx, cfg)
	case "azure":
		if cfg.Bucket == "" {
			return nil, errors.New("storage: azure provider requires a container")
		}
		return NewAzureFileSystem(ctx, cfg)
	default:
		return nil, fmt.Errorf("storage: unsupported provider %q", cfg.Provider)
	}
}

// seekOffset resolves an io.Seeker request against the current offset and
// the stream size.
func seekOffset(cur, size, offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = cur + offset
	case io.SeekEnd:
		abs = size + offset
	default:
		return 0, fmt.Errorf("storage: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("storage: negative position %d", abs)
	}
	return abs, nil
}

// objectPrefix turns a directory name into a listing prefix.
func objectPrefix(dir string) string {
	dir = strings.TrimPrefix(dir, "/")
	if dir == "" || strings.HasSuffix(dir, "/") {
		return dir
	}
	return dir + "/"
}

// wholeObjectBlock reports an object as a single block without hosts.
func wholeObjectBlock(size, offset, length int64) []BlockLocation {
	if offset < 0 || length < 0 || offset > size {
		return nil
	}
	return []BlockLocation{{Offset: 0, Length: size}}
}
