package kafka

import (
	"encoding/json"

	"github.com/IBM/sarama"

	"gateway-service/internal/gateway"
)

func newSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V2_0_0_0
	config.ClientID = "gateway-service"

	return sarama.NewSyncProducer(brokers, config)
}

// EventSink mirrors gateway lifecycle events to a Kafka topic for external
// observability pipelines. Implements gateway.EventSink.
type EventSink struct {
	producer sarama.SyncProducer
	topic    string
}

func NewEventSink(brokers []string, topic string) (*EventSink, error) {
	producer, err := newSyncProducer(brokers)
	if err != nil {
		return nil, err
	}
	return &EventSink{producer: producer, topic: topic}, nil
}

// Publish implements gateway.EventSink. Events for the same connection hash
// to the same partition, preserving their relative order.
func (s *EventSink) Publish(event gateway.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(event.ConnectionID),
		Value: sarama.ByteEncoder(payload),
	}
	_, _, err = s.producer.SendMessage(msg)
	return err
}

func (s *EventSink) Close() error {
	return s.producer.Close()
}
