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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
)

// s3API is the subset of the S3 client used here.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// S3FileSystem reads objects from one S3 (or S3-compatible) bucket. Paths
// are object keys.
type S3FileSystem struct {
	client s3API
	bucket string
}

var _ FileSystem = (*S3FileSystem)(nil)

// NewS3FileSystem builds an S3 client from the default AWS configuration
// chain plus the overrides in cfg.
func NewS3FileSystem(ctx context.Context, cfg Config) (*S3FileSystem, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	if cfg.Role != "" {
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(awsCfg), cfg.Role, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = "linesplit"
		})
		awsCfg.Credentials = aws.NewCredentialsCache(provider)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return newS3FileSystem(client, cfg.Bucket), nil
}

func newS3FileSystem(client s3API, bucket string) *S3FileSystem {
	return &S3FileSystem{client: client, bucket: bucket}
}

func (f *S3FileSystem) Open(ctx context.Context, path string) (File, error) {
	size, err := f.FileLength(ctx, path)
	recordOpen(ctx, "s3", err)
	if err != nil {
		return nil, err
	}
	return &s3File{ctx: ctx, fs: f, key: path, size: size}, nil
}

func (f *S3FileSystem) FileLength(ctx context.Context, path string) (int64, error) {
	out, err := f.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return 0, s3Error("head", f.bucket, path, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (f *S3FileSystem) List(ctx context.Context, dir string) ([]FileInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(f.bucket),
		Prefix:    aws.String(objectPrefix(dir)),
		Delimiter: aws.String("/"),
	})

	var files []FileInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s3Error("list", f.bucket, dir, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			files = append(files, FileInfo{Path: key, Length: aws.ToInt64(obj.Size)})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (f *S3FileSystem) BlockLocations(ctx context.Context, path string, offset, length int64) ([]BlockLocation, error) {
	size, err := f.FileLength(ctx, path)
	if err != nil {
		return nil, err
	}
	return wholeObjectBlock(size, offset, length), nil
}

func s3Error(op, bucket, key string, err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	var apiErr smithy.APIError
	if errors.As(err, &noKey) || errors.As(err, &notFound) ||
		(errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound") {
		return fmt.Errorf("storage: %s s3://%s/%s: %w: %w", op, bucket, key, ErrNotFound, err)
	}
	return fmt.Errorf("storage: %s s3://%s/%s: %w", op, bucket, key, err)
}

// s3File streams an object with ranged GETs. Seeking drops the current
// body; the next Read reopens the object at the new offset.
type s3File struct {
	ctx    context.Context
	fs     *S3FileSystem
	key    string
	size   int64
	offset int64
	body   io.ReadCloser
	closed bool
}

func (o *s3File) Read(p []byte) (int, error) {
	if o.closed {
		return 0, fmt.Errorf("storage: read s3://%s/%s: %w", o.fs.bucket, o.key, errFileClosed)
	}
	if o.offset >= o.size {
		return 0, io.EOF
	}
	if o.body == nil {
		out, err := o.fs.client.GetObject(o.ctx, &s3.GetObjectInput{
			Bucket: aws.String(o.fs.bucket),
			Key:    aws.String(o.key),
			Range:  aws.String(fmt.Sprintf("bytes=%d-", o.offset)),
		})
		if err != nil {
			recordOpen(o.ctx, "s3", err)
			return 0, s3Error("get", o.fs.bucket, o.key, err)
		}
		o.body = out.Body
	}
	n, err := o.body.Read(p)
	o.offset += int64(n)
	return n, err
}

func (o *s3File) Seek(offset int64, whence int) (int64, error) {
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

func (o *s3File) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	return o.dropBody()
}

func (o *s3File) dropBody() error {
	if o.body == nil {
		return nil
	}
	err := o.body.Close()
	o.body = nil
	return err
}

var errFileClosed = errors.New("storage: file already closed")
