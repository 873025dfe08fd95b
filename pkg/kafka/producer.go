// Package kafka announces finished builds on a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/config"
)

// Event is one message: Key picks the partition, Value is encoded as JSON.
type Event struct {
	Key   string
	Value any
}

// Producer writes events synchronously to a single topic.
type Producer struct {
	writer  *kafka.Writer
	brokers []string
	logger  *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			// A build sends one event; retries are left to the caller.
			MaxAttempts:  1,
			BatchSize:    1,
			WriteTimeout: 10 * time.Second,
		},
		brokers: cfg.Brokers,
		logger:  slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// EncodeMessage turns event into a message with a JSON content-type header.
func EncodeMessage(event Event) (kafka.Message, error) {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding event %q: %w", event.Key, err)
	}
	return kafka.Message{
		Key:     []byte(event.Key),
		Value:   value,
		Headers: []kafka.Header{{Key: "content-type", Value: []byte("application/json")}},
	}, nil
}

func (p *Producer) Publish(ctx context.Context, event Event) error {
	msg, err := EncodeMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing %q to %s: %w", event.Key, p.writer.Topic, err)
	}
	p.logger.Debug("event published", "key", event.Key, "bytes", len(msg.Value))
	return nil
}

// Ping dials brokers in order until one answers.
func (p *Producer) Ping(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	var errs []error
	for _, broker := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err == nil {
			return conn.Close()
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("dialing kafka: %w", errors.Join(errs...))
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
