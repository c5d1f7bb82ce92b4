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
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	gets    []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	rng := aws.ToString(in.Range)
	f.gets = append(f.gets, rng)
	var off int
	if _, err := fmt.Sscanf(rng, "bytes=%d-", &off); err != nil {
		return nil, err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data[off:]))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		rest, ok := strings.CutPrefix(k, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(k),
			Size: aws.Int64(int64(len(f.objects[k]))),
		})
	}
	return out, nil
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{
		"logs/a.log":     []byte("alpha\nbeta\n"),
		"logs/b.log":     []byte("gamma\n"),
		"logs/old/c.log": []byte("deep\n"),
		"other/d.log":    []byte("no\n"),
	}}
}

func TestS3List(t *testing.T) {
	fs := newS3FileSystem(newFakeS3(), "bucket")
	files, err := fs.List(context.Background(), "logs")
	require.NoError(t, err)
	assert.Equal(t, []FileInfo{
		{Path: "logs/a.log", Length: 11},
		{Path: "logs/b.log", Length: 6},
	}, files)
}

func TestS3OpenSeekRead(t *testing.T) {
	client := newFakeS3()
	fs := newS3FileSystem(client, "bucket")
	ctx := context.Background()

	f, err := fs.Open(ctx, "logs/a.log")
	require.NoError(t, err)

	buf := make([]byte, 3)
	_, err = io.ReadFull(f, buf)
	require.NoError(t, err)
	assert.Equal(t, "alp", string(buf))

	pos, err := f.Seek(6, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)

	rest, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "beta\n", string(rest))
	assert.Equal(t, []string{"bytes=0-", "bytes=6-"}, client.gets)

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
	_, err = f.Read(buf)
	assert.Error(t, err)
}

func TestS3SeekWithoutMoveKeepsBody(t *testing.T) {
	client := newFakeS3()
	fs := newS3FileSystem(client, "bucket")

	f, err := fs.Open(context.Background(), "logs/b.log")
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 2)
	_, err = io.ReadFull(f, buf)
	require.NoError(t, err)

	_, err = f.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	_, err = io.ReadAll(f)
	require.NoError(t, err)
	assert.Len(t, client.gets, 1)
}

func TestS3NotFound(t *testing.T) {
	fs := newS3FileSystem(newFakeS3(), "bucket")
	ctx := context.Background()

	_, err := fs.Open(ctx, "logs/missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = fs.BlockLocations(ctx, "logs/missing", 0, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3BlockLocations(t *testing.T) {
	fs := newS3FileSystem(newFakeS3(), "bucket")
	blocks, err := fs.BlockLocations(context.Background(), "logs/a.log", 3, 4)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, BlockLocation{Offset: 0, Length: 11}, blocks[0])
}
