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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/linesplit/internal/planner"
	"github.com/cardinalhq/linesplit/internal/recordreader"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Split.SubSplitCount)
	assert.Equal(t, 4, cfg.Split.MaxSplitsPerComposite)
	assert.False(t, cfg.Split.ShuffleFileOrder)
	assert.False(t, cfg.Reader.ShuffleEnabled)
	assert.Equal(t, 0, cfg.Reader.MaxLineLength)
	assert.Equal(t, 64*1024, cfg.Reader.ReadBufferSize)
	assert.Equal(t, recordreader.KindComposite, cfg.Reader.Kind)
	assert.Equal(t, "local", cfg.Storage.Provider)
	assert.Equal(t, "linesplit-readers", cfg.Dispatch.GroupID)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LINESPLIT_SPLIT_SUB_SPLIT_COUNT", "8")
	t.Setenv("LINESPLIT_SPLIT_SHUFFLE_FILE_ORDER", "true")
	t.Setenv("LINESPLIT_READER_KIND", "sequential")
	t.Setenv("LINESPLIT_READER_MAX_LINE_LENGTH", "4096")
	t.Setenv("LINESPLIT_STORAGE_PROVIDER", "s3")
	t.Setenv("LINESPLIT_STORAGE_BUCKET", "logs")
	t.Setenv("LINESPLIT_DISPATCH_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("LINESPLIT_DISPATCH_GROUP_ID", "readers-a")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Split.SubSplitCount)
	assert.True(t, cfg.Split.ShuffleFileOrder)
	assert.Equal(t, recordreader.KindSequential, cfg.Reader.Kind)
	assert.Equal(t, 4096, cfg.Reader.MaxLineLength)
	assert.Equal(t, "s3", cfg.Storage.Provider)
	assert.Equal(t, "logs", cfg.Storage.Bucket)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Dispatch.Brokers)
	assert.Equal(t, "readers-a", cfg.Dispatch.GroupID)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	yaml := []byte("split:\n  max_splits_per_composite: 2\nreader:\n  shuffle_enabled: true\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Split.MaxSplitsPerComposite)
	assert.Equal(t, 4, cfg.Split.SubSplitCount)
	assert.True(t, cfg.Reader.ShuffleEnabled)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LINESPLIT_SPLIT_SUB_SPLIT_COUNT", "0")
	t.Setenv("LINESPLIT_READER_READ_BUFFER_SIZE", "-1")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, planner.ErrConfiguration))
	assert.Contains(t, err.Error(), "sub_split_count")
	assert.Contains(t, err.Error(), "read_buffer_size")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"bad kind", func(c *Config) { c.Reader.Kind = "mmap" }, true},
		{"negative max line", func(c *Config) { c.Reader.MaxLineLength = -1 }, true},
		{"zero buffer", func(c *Config) { c.Reader.ReadBufferSize = 0 }, true},
		{"zero composite size", func(c *Config) { c.Split.MaxSplitsPerComposite = 0 }, true},
		{"negative block size", func(c *Config) { c.Storage.BlockSize = -5 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := defaults()
			tt.mutate(c)
			err := c.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var cerr *planner.ConfigurationError
			assert.True(t, errors.As(err, &cerr))
		})
	}
}
