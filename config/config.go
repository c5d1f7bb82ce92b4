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
	"reflect"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"github.com/cardinalhq/linesplit/internal/dispatch"
	"github.com/cardinalhq/linesplit/internal/planner"
	"github.com/cardinalhq/linesplit/internal/recordreader"
	"github.com/cardinalhq/linesplit/internal/storage"
)

// Config aggregates configuration for the application.
// Each field is owned by its respective package.
type Config struct {
	Split    planner.Config      `mapstructure:"split"`
	Reader   recordreader.Config `mapstructure:"reader"`
	Storage  storage.Config      `mapstructure:"storage"`
	Dispatch dispatch.Config     `mapstructure:"dispatch"`
}

func defaults() *Config {
	return &Config{
		Split:    planner.DefaultConfig(),
		Reader:   recordreader.DefaultConfig(),
		Storage:  storage.DefaultConfig(),
		Dispatch: dispatch.DefaultConfig(),
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "LINESPLIT" and the dot character
// in keys is replaced by an underscore. For example, "split.sub_split_count"
// becomes "LINESPLIT_SPLIT_SUB_SPLIT_COUNT".
func Load() (*Config, error) {
	cfg := defaults()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("LINESPLIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if b := v.GetString("dispatch.brokers"); b != "" {
		cfg.Dispatch.Brokers = strings.Split(b, ",")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once. Each problem is a
// *planner.ConfigurationError.
func (c *Config) Validate() error {
	var result *multierror.Error
	if err := c.Split.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	switch strings.ToLower(c.Reader.Kind) {
	case "", recordreader.KindComposite, recordreader.KindSequential:
	default:
		result = multierror.Append(result, &planner.ConfigurationError{
			Field: "kind", Value: c.Reader.Kind, Reason: `must be "composite" or "sequential"`,
		})
	}
	if c.Reader.MaxLineLength < 0 {
		result = multierror.Append(result, &planner.ConfigurationError{
			Field: "max_line_length", Value: c.Reader.MaxLineLength, Reason: "must not be negative",
		})
	}
	if c.Reader.ReadBufferSize <= 0 {
		result = multierror.Append(result, &planner.ConfigurationError{
			Field: "read_buffer_size", Value: c.Reader.ReadBufferSize, Reason: "must be at least 1",
		})
	}
	if c.Storage.BlockSize < 0 {
		result = multierror.Append(result, &planner.ConfigurationError{
			Field: "block_size", Value: c.Storage.BlockSize, Reason: "must not be negative",
		})
	}
	return result.ErrorOrNil()
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := range typ.NumField() {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(slices.Clone(parts), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
