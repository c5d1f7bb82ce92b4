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
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/linesplit/internal/splits"
)

const (
	HeaderPlanID     = "plan-id"
	HeaderSplitIndex = "split-index"
	HeaderSplitCount = "split-count"
)

// Config selects the Kafka brokers and topic splits are published to.
type Config struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`

	// GroupID is the consumer group readers join to share a topic.
	GroupID string `mapstructure:"group_id"`
}

func DefaultConfig() Config {
	return Config{Topic: "linesplit.splits", GroupID: "linesplit-readers"}
}

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes one message per split. The message key is the split
// fingerprint so a replayed plan lands on the same partitions.
type KafkaSink struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
	tracer trace.Tracer
}

var _ Sink = (*KafkaSink)(nil)

func NewKafkaSink(cfg Config, logger *slog.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("dispatch: no kafka brokers configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("dispatch: no kafka topic configured")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return newKafkaSink(w, cfg.Topic, logger), nil
}

func newKafkaSink(w messageWriter, topic string, logger *slog.Logger) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSink{
		writer: w,
		topic:  topic,
		logger: logger,
		tracer: otel.Tracer("github.com/cardinalhq/linesplit/internal/dispatch"),
	}
}

func (k *KafkaSink) Publish(ctx context.Context, planID string, batch []*splits.CompositeSplit) error {
	ctx, span := k.tracer.Start(ctx, "dispatch.kafka.publish")
	defer span.End()
	span.SetAttributes(
		attribute.String("plan_id", planID),
		attribute.String("topic", k.topic),
		attribute.Int("splits", len(batch)),
	)

	if len(batch) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(batch))
	for i, s := range batch {
		m, err := splitMessage(planID, i, len(batch), s)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "encode failed")
			return err
		}
		msgs = append(msgs, m)
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return fmt.Errorf("dispatch: publishing plan %s to %s: %w", planID, k.topic, err)
	}
	recordPublished(ctx, "kafka", len(batch))
	k.logger.Info("Published splits",
		slog.String("planID", planID),
		slog.String("topic", k.topic),
		slog.Int("count", len(batch)))
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

func splitMessage(planID string, index, count int, s *splits.CompositeSplit) (kafka.Message, error) {
	value, err := s.MarshalBinary()
	if err != nil {
		return kafka.Message{}, fmt.Errorf("dispatch: encoding split %d of plan %s: %w", index, planID, err)
	}
	return kafka.Message{
		Key:   binary.BigEndian.AppendUint64(nil, s.Fingerprint()),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderPlanID, Value: []byte(planID)},
			{Key: HeaderSplitIndex, Value: []byte(strconv.Itoa(index))},
			{Key: HeaderSplitCount, Value: []byte(strconv.Itoa(count))},
		},
	}, nil
}

// decodeMessage recovers the split carried by a message from KafkaSink.
func decodeMessage(m kafka.Message) (*splits.CompositeSplit, error) {
	s := &splits.CompositeSplit{}
	if err := s.UnmarshalBinary(m.Value); err != nil {
		return nil, fmt.Errorf("dispatch: decoding message at offset %d: %w", m.Offset, err)
	}
	return s, nil
}
