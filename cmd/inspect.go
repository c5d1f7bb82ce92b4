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

package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/linesplit/config"
	"github.com/cardinalhq/linesplit/internal/splits"
	"github.com/cardinalhq/linesplit/internal/storage"
)

var inspectManifest string

func init() {
	inspectCmd.Flags().StringVarP(&inspectManifest, "manifest", "m", "", "Manifest file written by plan")
	_ = inspectCmd.MarkFlagRequired("manifest")

	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Dump the splits of a manifest as YAML",
	RunE: func(c *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		all, err := loadManifest(inspectManifest)
		if err != nil {
			return err
		}
		return withTelemetry(func(ctx context.Context) error {
			fs, err := storage.New(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			return inspectSplits(ctx, fs, all, c.OutOrStdout())
		})
	},
}

type rangeDoc struct {
	Path   string `yaml:"path"`
	Start  int64  `yaml:"start"`
	Length int64  `yaml:"length"`
}

type splitDoc struct {
	Index       int        `yaml:"index"`
	Fingerprint string     `yaml:"fingerprint"`
	TotalLength int64      `yaml:"total_length"`
	Locations   []string   `yaml:"locations,omitempty"`
	Ranges      []rangeDoc `yaml:"ranges"`
}

func inspectSplits(ctx context.Context, fs splits.BlockLocator, all []*splits.CompositeSplit, w io.Writer) error {
	docs := make([]splitDoc, 0, len(all))
	for i, s := range all {
		locs, err := s.Locations(ctx, fs)
		if err != nil {
			return err
		}
		d := splitDoc{
			Index:       i,
			Fingerprint: fmt.Sprintf("%016x", s.Fingerprint()),
			TotalLength: s.TotalLength(),
			Locations:   locs,
		}
		for _, r := range s.Ranges() {
			d.Ranges = append(d.Ranges, rangeDoc{Path: r.Path, Start: r.Start, Length: r.Length})
		}
		docs = append(docs, d)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(docs); err != nil {
		return fmt.Errorf("encoding splits: %w", err)
	}
	return enc.Close()
}
