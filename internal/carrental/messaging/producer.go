package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/25x8/carrental/internal/carrental/models"
)

// Producer publishes events of one type to a single topic.
type Producer[T models.Event] struct {
	Producer sarama.SyncProducer
	Topic    string
	Log      logrus.FieldLogger
}

// Send publishes event keyed by its id.
func (p *Producer[T]) Send(event T) error {
	value, err := json.Marshal(event)
	if err != nil {
		p.Log.WithError(err).WithField("topic", p.Topic).Error("failed to marshal event")
		return err
	}

	message := &sarama.ProducerMessage{
		Topic: p.Topic,
		Key:   sarama.StringEncoder(event.GetId()),
		Value: sarama.ByteEncoder(value),
	}

	partition, offset, err := p.Producer.SendMessage(message)
	if err != nil {
		p.Log.WithError(err).WithField("topic", p.Topic).Error("error send message")
		return fmt.Errorf("send to %s: %w", p.Topic, err)
	}

	p.Log.WithFields(logrus.Fields{
		"topic":     p.Topic,
		"event_id":  event.GetId(),
		"partition": partition,
		"offset":    offset,
	}).Debug("event published")
	return nil
}

// NewSyncProducer connects a synchronous producer that waits for all
// in-sync replicas.
func NewSyncProducer(brokers []string, clientID string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = false

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect kafka %v: %w", brokers, err)
	}
	return producer, nil
}
