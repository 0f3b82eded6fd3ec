// Package broker exports exchange events to Kafka. Two producers are
// available: segmentio/kafka-go and IBM/sarama. Every record carries the same
// key, so the whole event stream lands on one partition in sequence order.
// The sequence number and event kind travel as headers.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/segmentio/kafka-go"

	"github.com/uhyunpark/tokenex/pkg/app/core/events"
)

const (
	DriverKafkaGo = "kafka-go"
	DriverSarama  = "sarama"

	// StreamKey is the record key of every exported event.
	StreamKey = "tokenex-events"

	seqHeader  = "seq"
	kindHeader = "kind"
)

var ErrUnknownDriver = errors.New("unknown kafka driver")

// Sink is an event sink that owns a broker connection
type Sink interface {
	events.Sink
	io.Closer
}

// New builds a producer for the named driver
func New(driver string, brokers []string, topic string) (Sink, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka needs brokers and a topic")
	}
	switch driver {
	case "", DriverKafkaGo:
		return NewKafkaWriter(brokers, topic), nil
	case DriverSarama:
		return NewSaramaProducer(brokers, topic)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
}

func encode(ev events.Event) (key, value []byte, err error) {
	value, err = json.Marshal(ev)
	if err != nil {
		return nil, nil, fmt.Errorf("encode event %d: %w", ev.Seq, err)
	}
	return []byte(StreamKey), value, nil
}

// ------------------------------------------------
// kafka-go
// ------------------------------------------------

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaWriter publishes through a synchronous kafka-go Writer
type KafkaWriter struct {
	writer messageWriter
}

func NewKafkaWriter(brokers []string, topic string) *KafkaWriter {
	return &KafkaWriter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (k *KafkaWriter) Name() string { return "kafka" }

func (k *KafkaWriter) Publish(ctx context.Context, ev events.Event) error {
	msg, err := kafkaMessage(ev)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, msg)
}

func (k *KafkaWriter) Close() error { return k.writer.Close() }

func kafkaMessage(ev events.Event) (kafka.Message, error) {
	key, value, err := encode(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:     key,
		Value:   value,
		Headers: []kafka.Header{
			{Key: seqHeader, Value: []byte(strconv.FormatUint(ev.Seq, 10))},
			{Key: kindHeader, Value: []byte(ev.Kind)},
		},
	}, nil
}

// ------------------------------------------------
// sarama
// ------------------------------------------------

// SaramaProducer publishes through a sarama SyncProducer
type SaramaProducer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewSaramaProducer(brokers []string, topic string) (*SaramaProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewSaramaProducerFrom(producer, topic), nil
}

// NewSaramaProducerFrom wraps an existing producer
func NewSaramaProducerFrom(producer sarama.SyncProducer, topic string) *SaramaProducer {
	return &SaramaProducer{producer: producer, topic: topic}
}

func (s *SaramaProducer) Name() string { return "sarama" }

func (s *SaramaProducer) Publish(_ context.Context, ev events.Event) error {
	msg, err := s.message(ev)
	if err != nil {
		return err
	}
	if _, _, err := s.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send event %d: %w", ev.Seq, err)
	}
	return nil
}

func (s *SaramaProducer) Close() error { return s.producer.Close() }

func (s *SaramaProducer) message(ev events.Event) (*sarama.ProducerMessage, error) {
	key, value, err := encode(ev)
	if err != nil {
		return nil, err
	}
	return &sarama.ProducerMessage{
		Topic:   s.topic,
		Key:     sarama.ByteEncoder(key),
		Value:   sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(seqHeader), Value: []byte(strconv.FormatUint(ev.Seq, 10))},
			{Key: []byte(kindHeader), Value: []byte(ev.Kind)},
		},
	}, nil
}
