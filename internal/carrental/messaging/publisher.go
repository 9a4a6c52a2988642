package messaging

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/25x8/carrental/internal/carrental/models"
)

// Publisher fans booking and redemption events out to their topics.
// Send failures are logged; the change they describe is already committed.
type Publisher struct {
	bookings    *Producer[*models.BookingEvent]
	redemptions *Producer[*models.RedemptionEvent]
	client      sarama.SyncProducer
	log         logrus.FieldLogger
}

// NewPublisher creates a publisher writing to <prefix>.booking and
// <prefix>.redemption.
func NewPublisher(client sarama.SyncProducer, topicPrefix string, log logrus.FieldLogger) *Publisher {
	return &Publisher{
		bookings: &Producer[*models.BookingEvent]{
			Producer: client,
			Topic:    topicPrefix + ".booking",
			Log:      log,
		},
		redemptions: &Producer[*models.RedemptionEvent]{
			Producer: client,
			Topic:    topicPrefix + ".redemption",
			Log:      log,
		},
		client: client,
		log:    log,
	}
}

func stamp(id *string, at *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if at.IsZero() {
		*at = time.Now().UTC()
	}
}

// BookingChanged publishes a booking event
func (p *Publisher) BookingChanged(_ context.Context, event *models.BookingEvent) {
	stamp(&event.ID, &event.OccurredAt)
	if err := p.bookings.Send(event); err != nil {
		p.log.WithFields(logrus.Fields{
			"booking_id": event.BookingID,
			"type":       event.Type,
		}).WithError(err).Warn("booking event dropped")
	}
}

// RedemptionChanged publishes a payment request event
func (p *Publisher) RedemptionChanged(_ context.Context, event *models.RedemptionEvent) {
	stamp(&event.ID, &event.OccurredAt)
	if err := p.redemptions.Send(event); err != nil {
		p.log.WithFields(logrus.Fields{
			"request_id": event.RequestID,
			"partner_id": event.PartnerID,
			"type":       event.Type,
		}).WithError(err).Warn("redemption event dropped")
	}
}

// Close closes the underlying Kafka producer.
func (p *Publisher) Close() error {
	return p.client.Close()
}
