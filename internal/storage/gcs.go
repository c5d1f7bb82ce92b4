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
	"io"
	"sort"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// objectBackend is the slice of Google Cloud Storage used by GCSFileSystem.
type objectBackend interface {
	rangeReader(ctx context.Context, name string, offset int64) (io.ReadCloser, error)
	size(ctx context.Context, name string) (int64, error)
	list(ctx context.Context, prefix string) ([]FileInfo, error)
}

// GCSFileSystem reads objects from one Google Cloud Storage bucket. Paths are
// object names.
type GCSFileSystem struct {
	backend objectBackend
	bucket  string
}

var _ FileSystem = (*GCSFileSystem)(nil)

// NewGCSFileSystem uses application default credentials. When cfg.Role is
// set it names a service account to impersonate.
func NewGCSFileSystem(ctx context.Context, cfg Config) (*GCSFileSystem, error) {
	var opts []option.ClientOption
	if cfg.Role != "" {
		ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
			TargetPrincipal: cfg.Role,
			Scopes:          []string{gcs.ScopeReadOnly},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to impersonate %s: %w", cfg.Role, err)
		}
		opts = append(opts, option.WithTokenSource(ts))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSFileSystem{
		backend: &gcsBackend{bucket: client.Bucket(cfg.Bucket)},
		bucket:  cfg.Bucket,
	}, nil
}

func (g *GCSFileSystem) Open(ctx context.Context, path string) (File, error) {
	size, err := g.FileLength(ctx, path)
	recordOpen(ctx, "gcs", err)
	if err != nil {
		return nil, err
	}
	return &gcsFile{ctx: ctx, fs: g, name: path, size: size}, nil
}

func (g *GCSFileSystem) FileLength(ctx context.Context, path string) (int64, error) {
	n, err := g.backend.size(ctx, path)
	if err != nil {
		return 0, g.wrap("attrs", path, err)
	}
	return n, nil
}

func (g *GCSFileSystem) List(ctx context.Context, dir string) ([]FileInfo, error) {
	files, err := g.backend.list(ctx, objectPrefix(dir))
	if err != nil {
		return nil, g.wrap("list", dir, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (g *GCSFileSystem) BlockLocations(ctx context.Context, path string, offset, length int64) ([]BlockLocation, error) {
	size, err := g.FileLength(ctx, path)
	if err != nil {
		return nil, err
	}
	return wholeObjectBlock(size, offset, length), nil
}

func (g *GCSFileSystem) wrap(op, name string, err error) error {
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) || errors.Is(err, ErrNotFound) {
		return fmt.Errorf("storage: %s gs://%s/%s: %w: %w", op, g.bucket, name, ErrNotFound, err)
	}
	return fmt.Errorf("storage: %s gs://%s/%s: %w", op, g.bucket, name, err)
}

type gcsBackend struct {
	bucket *gcs.BucketHandle
}

func (b *gcsBackend) rangeReader(ctx context.Context, name string, offset int64) (io.ReadCloser, error) {
	// ReadCompressed keeps gzip-encoded objects at their stored length.
	return b.bucket.Object(name).ReadCompressed(true).NewRangeReader(ctx, offset, -1)
}

func (b *gcsBackend) size(ctx context.Context, name string) (int64, error) {
	attrs, err := b.bucket.Object(name).Attrs(ctx)
	if err != nil {
		return 0, err
	}
	return attrs.Size, nil
}

// list uses a "/" delimiter, so deeper names come back as prefixes and are
// dropped.
func (b *gcsBackend) list(ctx context.Context, prefix string) ([]FileInfo, error) {
	it := b.bucket.Objects(ctx, &gcs.Query{Prefix: prefix, Delimiter: "/"})
	var files []FileInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		if attrs.Name == "" || strings.TrimPrefix(attrs.Name, prefix) == "" {
			continue
		}
		files = append(files, FileInfo{Path: attrs.Name, Length: attrs.Size})
	}
	return files, nil
}

// gcsFile streams an object with range reads, reopening after a seek.
type gcsFile struct {
	ctx    context.Context
	fs     *GCSFileSystem
	name   string
	size   int64
	offset int64
	body   io.ReadCloser
	closed bool
}

func (o *gcsFile) Read(p []byte) (int, error) {
	if o.closed {
		return 0, errFileClosed
	}
	if o.offset >= o.size {
		return 0, io.EOF
	}
	if o.body == nil {
		body, err := o.fs.backend.rangeReader(o.ctx, o.name, o.offset)
		if err != nil {
			recordOpen(o.ctx, "gcs", err)
			return 0, o.fs.wrap("read", o.name, err)
		}
		o.body = body
	}
	n, err := o.body.Read(p)
	o.offset += int64(n)
	return n, err
}

func (o *gcsFile) Seek(offset int64, whence int) (int64, error) {
	if o.closed {
		return 0, errFileClosed
	}
	abs, err := seekOffset(o.offset, o.size, offset, whence)
	if err != nil {
		return 0, err
	}
	if abs != o.offset {
		_ = o.dropBody()
		o.offset = abs
	}
	return abs, nil
}

func (o *gcsFile) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	return o.dropBody()
}

func (o *gcsFile) dropBody() error {
	if o.body == nil {
		return nil
	}
	err := o.body.Close()
	o.body = nil
	return err
}
