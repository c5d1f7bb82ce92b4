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

package dispatch

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/linesplit/internal/splits"
)

func testSplits() []*splits.CompositeSplit {
	return []*splits.CompositeSplit{
		splits.New(
			splits.ByteRange{Path: "/data/a.log", Start: 0, Length: 25},
			splits.ByteRange{Path: "/data/b.log", Start: 0, Length: 10},
		),
		splits.New(
			splits.ByteRange{Path: "/data/a.log", Start: 25, Length: 25},
			splits.ByteRange{Path: "/data/b.log", Start: 10, Length: 10},
		),
		splits.New(),
	}
}

type nopCloser struct {
	*bytes.Buffer
	closed bool
}

func (n *nopCloser) Close() error {
	n.closed = true
	return nil
}

func TestManifestRoundTrip(t *testing.T) {
	buf := &nopCloser{Buffer: &bytes.Buffer{}}
	sink := NewManifestSink(buf)

	in := testSplits()
	require.NoError(t, sink.Publish(context.Background(), "plan-1", in[:2]))
	require.NoError(t, sink.Publish(context.Background(), "plan-1", in[2:]))
	assert.Equal(t, 3, sink.Count())
	require.NoError(t, sink.Close())
	assert.True(t, buf.closed)

	got, err := ReadManifest(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestManifestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.splits")
	f, err := os.Create(path)
	require.NoError(t, err)

	sink := NewManifestSink(f)
	require.NoError(t, sink.Publish(context.Background(), "p", testSplits()))
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	r, err := os.Open(path)
	require.NoError(t, err)
	defer r.Close()
	got, err := ReadManifest(r)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestManifestPublishAfterClose(t *testing.T) {
	sink := NewManifestSink(&nopCloser{Buffer: &bytes.Buffer{}})
	require.NoError(t, sink.Close())
	assert.Error(t, sink.Publish(context.Background(), "p", testSplits()))
}

func TestReadManifestEmpty(t *testing.T) {
	got, err := ReadManifest(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadManifestTruncated(t *testing.T) {
	var buf bytes.Buffer
	for _, s := range testSplits()[:2] {
		_, err := s.WriteTo(&buf)
		require.NoError(t, err)
	}
	data := buf.Bytes()[:buf.Len()-3]

	got, err := ReadManifest(bytes.NewReader(data))
	require.Error(t, err)
	assert.True(t, errors.Is(err, splits.ErrFormat))
	assert.Len(t, got, 1)
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaSinkPublish(t *testing.T) {
	w := &fakeWriter{}
	sink := newKafkaSink(w, "splits", nil)

	in := testSplits()
	require.NoError(t, sink.Publish(context.Background(), "plan-7", in))
	require.Len(t, w.msgs, len(in))

	for i, m := range w.msgs {
		assert.Equal(t, in[i].Fingerprint(), binary.BigEndian.Uint64(m.Key))
		assert.Equal(t, "plan-7", header(m, HeaderPlanID))
		assert.Equal(t, []string{"0", "1", "2"}[i], header(m, HeaderSplitIndex))
		assert.Equal(t, "3", header(m, HeaderSplitCount))

		got, err := decodeMessage(m)
		require.NoError(t, err)
		assert.Equal(t, in[i], got)
	}

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestKafkaSinkEmptyBatch(t *testing.T) {
	w := &fakeWriter{}
	sink := newKafkaSink(w, "splits", nil)
	require.NoError(t, sink.Publish(context.Background(), "p", nil))
	assert.Empty(t, w.msgs)
}

func TestKafkaSinkWriteError(t *testing.T) {
	w := &fakeWriter{err: io.ErrClosedPipe}
	sink := newKafkaSink(w, "splits", nil)
	err := sink.Publish(context.Background(), "p", testSplits())
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestNewKafkaSinkValidation(t *testing.T) {
	_, err := NewKafkaSink(Config{Topic: "t"}, nil)
	assert.Error(t, err)

	_, err = NewKafkaSink(Config{Brokers: []string{"localhost:9092"}}, nil)
	assert.Error(t, err)

	sink, err := NewKafkaSink(Config{Brokers: []string{"localhost:9092"}, Topic: "t"}, nil)
	require.NoError(t, err)
	require.NoError(t, sink.Close())
}

func TestDecodeMessageMalformed(t *testing.T) {
	_, err := decodeMessage(kafka.Message{Value: []byte{1, 2, 3}})
	assert.ErrorIs(t, err, splits.ErrFormat)
}
