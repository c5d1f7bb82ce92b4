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

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// blobBackend is the slice of Azure Blob Storage used by AzureFileSystem.
type blobBackend interface {
	download(ctx context.Context, name string, offset int64) (io.ReadCloser, error)
	length(ctx context.Context, name string) (int64, error)
	list(ctx context.Context, prefix string) ([]FileInfo, error)
}

// AzureFileSystem reads blobs from one Azure Storage container. Paths are
// blob names.
type AzureFileSystem struct {
	backend   blobBackend
	container string
}

var _ FileSystem = (*AzureFileSystem)(nil)

// NewAzureFileSystem authenticates with the default Azure credential chain
// and opens the container named by cfg.Bucket.
func NewAzureFileSystem(_ context.Context, cfg Config) (*AzureFileSystem, error) {
	if cfg.AzureAccountURL == "" {
		return nil, errors.New("storage: azure provider requires azure_account_url")
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure credential: %w", err)
	}
	client, err := azblob.NewClient(cfg.AzureAccountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	return &AzureFileSystem{
		backend:   &azblobBackend{client: client, container: cfg.Bucket},
		container: cfg.Bucket,
	}, nil
}

func (a *AzureFileSystem) Open(ctx context.Context, path string) (File, error) {
	size, err := a.FileLength(ctx, path)
	recordOpen(ctx, "azure", err)
	if err != nil {
		return nil, err
	}
	return &blobFile{ctx: ctx, fs: a, name: path, size: size}, nil
}

func (a *AzureFileSystem) FileLength(ctx context.Context, path string) (int64, error) {
	n, err := a.backend.length(ctx, path)
	if err != nil {
		return 0, a.wrap("properties", path, err)
	}
	return n, nil
}

func (a *AzureFileSystem) List(ctx context.Context, dir string) ([]FileInfo, error) {
	files, err := a.backend.list(ctx, objectPrefix(dir))
	if err != nil {
		return nil, a.wrap("list", dir, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (a *AzureFileSystem) BlockLocations(ctx context.Context, path string, offset, length int64) ([]BlockLocation, error) {
	size, err := a.FileLength(ctx, path)
	if err != nil {
		return nil, err
	}
	return wholeObjectBlock(size, offset, length), nil
}

func (a *AzureFileSystem) wrap(op, name string, err error) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) || errors.Is(err, ErrNotFound) {
		return fmt.Errorf("storage: %s azure://%s/%s: %w: %w", op, a.container, name, ErrNotFound, err)
	}
	return fmt.Errorf("storage: %s azure://%s/%s: %w", op, a.container, name, err)
}

type azblobBackend struct {
	client    *azblob.Client
	container string
}

func (b *azblobBackend) download(ctx context.Context, name string, offset int64) (io.ReadCloser, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, name, &azblob.DownloadStreamOptions{
		Range: azblob.HTTPRange{Offset: offset},
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (b *azblobBackend) length(ctx context.Context, name string) (int64, error) {
	props, err := b.client.ServiceClient().
		NewContainerClient(b.container).
		NewBlobClient(name).
		GetProperties(ctx, nil)
	if err != nil {
		return 0, err
	}
	if props.ContentLength == nil {
		return 0, nil
	}
	return *props.ContentLength, nil
}

// list returns the blobs directly under prefix. The flat pager walks the
// whole subtree, so deeper names are filtered out.
func (b *azblobBackend) list(ctx context.Context, prefix string) ([]FileInfo, error) {
	pager := b.client.NewListBlobsFlatPager(b.container, &azblob.ListBlobsFlatOptions{
		Prefix: to.Ptr(prefix),
	})
	var files []FileInfo
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			name := *item.Name
			rest := strings.TrimPrefix(name, prefix)
			if rest == "" || strings.Contains(rest, "/") {
				continue
			}
			var size int64
			if item.Properties != nil && item.Properties.ContentLength != nil {
				size = *item.Properties.ContentLength
			}
			files = append(files, FileInfo{Path: name, Length: size})
		}
	}
	return files, nil
}

// blobFile streams a blob with ranged downloads, reopening after a seek.
type blobFile struct {
	ctx    context.Context
	fs     *AzureFileSystem
	name   string
	size   int64
	offset int64
	body   io.ReadCloser
	closed bool
}

func (o *blobFile) Read(p []byte) (int, error) {
	if o.closed {
		return 0, errFileClosed
	}
	if o.offset >= o.size {
		return 0, io.EOF
	}
	if o.body == nil {
		body, err := o.fs.backend.download(o.ctx, o.name, o.offset)
		if err != nil {
			recordOpen(o.ctx, "azure", err)
			return 0, o.fs.wrap("download", o.name, err)
		}
		o.body = body
	}
	n, err := o.body.Read(p)
	o.offset += int64(n)
	return n, err
}

func (o *blobFile) Seek(offset int64, whence int) (int64, error) {
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

func (o *blobFile) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	return o.dropBody()
}

func (o *blobFile) dropBody() error {
	if o.body == nil {
		return nil
	}
	err := o.body.Close()
	o.body = nil
	return err
}
