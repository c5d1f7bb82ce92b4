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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/cardinalhq/linesplit/internal/splits"
)

// Delivery is one split taken from the topic.
type Delivery struct {
	PlanID string
	Index  int
	Count  int
	Split  *splits.CompositeSplit
}

// messageReader is the part of *kafka.Reader the source uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource hands out the splits published by KafkaSink to one member of
// a consumer group.
type KafkaSource struct {
	reader messageReader
	topic  string
	logger *slog.Logger
}

func NewKafkaSource(cfg Config, logger *slog.Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("dispatch: no kafka brokers configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("dispatch: no kafka topic configured")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("dispatch: no kafka consumer group configured")
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0,
	})
	return newKafkaSource(r, cfg.Topic, logger), nil
}

func newKafkaSource(r messageReader, topic string, logger *slog.Logger) *KafkaSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSource{reader: r, topic: topic, logger: logger}
}

// Consume calls handle for each split in turn and commits its message once
// handle returns nil. Messages that do not decode are logged and committed.
// It stops after limit splits, or when ctx is done if limit is not positive,
// and returns the number of splits handled.
func (k *KafkaSource) Consume(ctx context.Context, limit int, handle func(context.Context, Delivery) error) (int, error) {
	handled := 0
	for limit <= 0 || handled < limit {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return handled, ctxErr
			}
			return handled, fmt.Errorf("dispatch: fetching from %s: %w", k.topic, err)
		}

		d, err := deliveryFrom(msg)
		if err != nil {
			k.logger.Warn("Skipping undecodable split message",
				slog.String("topic", k.topic),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Any("error", err))
		} else {
			if err := handle(ctx, d); err != nil {
				return handled, err
			}
			handled++
		}

		if err := k.reader.CommitMessages(ctx, msg); err != nil {
			return handled, fmt.Errorf("dispatch: committing offset %d on %s: %w", msg.Offset, k.topic, err)
		}
	}
	return handled, nil
}

func (k *KafkaSource) Close() error {
	return k.reader.Close()
}

func deliveryFrom(m kafka.Message) (Delivery, error) {
	s, err := decodeMessage(m)
	if err != nil {
		return Delivery{}, err
	}
	d := Delivery{Split: s, Index: -1}
	for _, h := range m.Headers {
		switch h.Key {
		case HeaderPlanID:
			d.PlanID = string(h.Value)
		case HeaderSplitIndex:
			if v, err := strconv.Atoi(string(h.Value)); err == nil {
				d.Index = v
			}
		case HeaderSplitCount:
			if v, err := strconv.Atoi(string(h.Value)); err == nil {
				d.Count = v
			}
		}
	}
	return d, nil
}
