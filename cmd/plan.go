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
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/linesplit/config"
	"github.com/cardinalhq/linesplit/internal/dispatch"
	"github.com/cardinalhq/linesplit/internal/idgen"
	"github.com/cardinalhq/linesplit/internal/planner"
	"github.com/cardinalhq/linesplit/internal/storage"
)

var (
	planInputs []string
	planOutput string
	planKafka  bool
)

func init() {
	planCmd.Flags().StringSliceVarP(&planInputs, "input", "i", nil, "Directory to plan over (repeatable)")
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "", "Write splits to this manifest file")
	planCmd.Flags().BoolVar(&planKafka, "kafka", false, "Publish splits to the configured Kafka topic")
	_ = planCmd.MarkFlagRequired("input")
	planCmd.MarkFlagsMutuallyExclusive("output", "kafka")
	planCmd.MarkFlagsOneRequired("output", "kafka")

	rootCmd.AddCommand(planCmd)
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "List input directories and publish the composite splits covering them",
	RunE: func(c *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return withTelemetry(func(ctx context.Context) error {
			fs, err := storage.New(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			var planID string
			var n int
			if planKafka {
				planID, n, err = runPlan(ctx, cfg.Split, fs, planInputs, func() (dispatch.Sink, error) {
					return dispatch.NewKafkaSink(cfg.Dispatch, slog.Default())
				}, slog.Default())
			} else {
				planID, n, err = planToFile(ctx, cfg.Split, fs, planInputs, planOutput, slog.Default())
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.OutOrStdout(), "plan %s: %d splits\n", planID, n)
			return err
		})
	},
}

// runPlan plans dirs and publishes the result under a fresh plan ID. The
// sink is opened only once planning has succeeded, and is always closed.
func runPlan(ctx context.Context, cfg planner.Config, fs storage.FileSystem, dirs []string, openSink func() (dispatch.Sink, error), logger *slog.Logger) (string, int, error) {
	p, err := planner.New(cfg, planner.WithLogger(logger))
	if err != nil {
		return "", 0, err
	}
	out, err := p.PlanDirs(ctx, fs, dirs)
	if err != nil {
		return "", 0, err
	}

	sink, err := openSink()
	if err != nil {
		return "", 0, err
	}
	planID := idgen.NewPlanID()
	err = sink.Publish(ctx, planID, out)
	if cerr := sink.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing sink: %w", cerr)
	}
	if err != nil {
		return planID, 0, err
	}
	logger.Info("Plan published",
		slog.String("planID", planID),
		slog.Int("splits", len(out)),
		slog.Any("dirs", dirs))
	return planID, len(out), nil
}

// planToFile writes the plan to a manifest at path. The file is created
// only after planning succeeds and is removed again if writing it fails.
func planToFile(ctx context.Context, cfg planner.Config, fs storage.FileSystem, dirs []string, path string, logger *slog.Logger) (string, int, error) {
	created := false
	planID, n, err := runPlan(ctx, cfg, fs, dirs, func() (dispatch.Sink, error) {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("creating manifest: %w", err)
		}
		created = true
		return dispatch.NewManifestSink(f), nil
	}, logger)
	if err != nil && created {
		if rerr := os.Remove(path); rerr != nil {
			logger.Warn("Failed to remove partial manifest", slog.String("path", path), slog.Any("error", rerr))
		}
	}
	return planID, n, err
}
