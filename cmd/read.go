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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/linesplit/config"
	"github.com/cardinalhq/linesplit/internal/dispatch"
	"github.com/cardinalhq/linesplit/internal/recordreader"
	"github.com/cardinalhq/linesplit/internal/splits"
	"github.com/cardinalhq/linesplit/internal/storage"
)

var (
	readManifest string
	readKafka    bool
	readLimit    int
	readWorkers  int
	readCount    bool
)

func init() {
	readCmd.Flags().StringVarP(&readManifest, "manifest", "m", "", "Manifest file written by plan")
	readCmd.Flags().BoolVar(&readKafka, "kafka", false, "Consume splits from the configured Kafka topic and consumer group")
	readCmd.Flags().IntVar(&readLimit, "limit", 0, "With --kafka, stop after this many splits (0 runs until interrupted)")
	readCmd.Flags().IntVarP(&readWorkers, "workers", "w", 4, "Number of manifest splits read concurrently")
	readCmd.Flags().BoolVar(&readCount, "count", false, "Print the record count of each split instead of the records")
	readCmd.MarkFlagsMutuallyExclusive("manifest", "kafka")
	readCmd.MarkFlagsOneRequired("manifest", "kafka")

	rootCmd.AddCommand(readCmd)
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read splits from a manifest or a Kafka topic and print their records",
	RunE: func(c *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		var all []*splits.CompositeSplit
		if !readKafka {
			if all, err = loadManifest(readManifest); err != nil {
				return err
			}
		}
		return withTelemetry(func(ctx context.Context) error {
			fs, err := storage.New(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			if !readKafka {
				return readSplits(ctx, fs, cfg.Reader, all, readWorkers, readCount, c.OutOrStdout())
			}

			src, err := dispatch.NewKafkaSource(cfg.Dispatch, slog.Default())
			if err != nil {
				return err
			}
			defer src.Close()
			err = consumeSplits(ctx, src, fs, cfg.Reader, readLimit, readCount, c.OutOrStdout())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	},
}

func loadManifest(path string) ([]*splits.CompositeSplit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()
	out, err := dispatch.ReadManifest(f)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	return out, nil
}

// splitResult is what one worker produced for one split.
type splitResult struct {
	records bytes.Buffer
	count   int64
}

func (r *splitResult) writeTo(w io.Writer, index int, s *splits.CompositeSplit, countOnly bool) error {
	if countOnly {
		_, err := fmt.Fprintf(w, "%d\t%d\t%s\n", index, r.count, s)
		return err
	}
	_, err := r.records.WriteTo(w)
	return err
}

// readSplits reads all splits with up to workers running at once, then
// writes the output in split order.
func readSplits(ctx context.Context, fs recordreader.Opener, cfg recordreader.Config, all []*splits.CompositeSplit, workers int, countOnly bool, w io.Writer) error {
	results := make([]splitResult, len(all))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, workers))
	for i, s := range all {
		g.Go(func() error {
			return readOne(gctx, fs, cfg, s, &results[i], !countOnly)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var total int64
	for i := range results {
		total += results[i].count
		if err := results[i].writeTo(w, i, all[i], countOnly); err != nil {
			return err
		}
	}
	slog.Info("Read splits", slog.Int("splits", len(all)), slog.Int64("records", total))
	return nil
}

// splitSource is the consuming side of a dispatch topic.
type splitSource interface {
	Consume(ctx context.Context, limit int, handle func(context.Context, dispatch.Delivery) error) (int, error)
}

// consumeSplits reads each split handed out by src as it arrives. A split
// is acknowledged only after its output is written.
func consumeSplits(ctx context.Context, src splitSource, fs recordreader.Opener, cfg recordreader.Config, limit int, countOnly bool, w io.Writer) error {
	var total int64
	n, err := src.Consume(ctx, limit, func(ctx context.Context, d dispatch.Delivery) error {
		var r splitResult
		if err := readOne(ctx, fs, cfg, d.Split, &r, !countOnly); err != nil {
			return fmt.Errorf("reading split %d of plan %s: %w", d.Index, d.PlanID, err)
		}
		total += r.count
		return r.writeTo(w, d.Index, d.Split, countOnly)
	})
	slog.Info("Consumed splits", slog.Int("splits", n), slog.Int64("records", total))
	return err
}

func readOne(ctx context.Context, fs recordreader.Opener, cfg recordreader.Config, s *splits.CompositeSplit, out *splitResult, keep bool) (err error) {
	rr, err := recordreader.New(ctx, fs, s, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, rr.Close())
	}()

	key, rec := rr.CreateKey(), rr.CreateRecord()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := rr.Next(key, rec)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		out.count++
		if keep {
			out.records.Write(rec.Bytes())
			out.records.WriteByte('\n')
		}
	}
}
