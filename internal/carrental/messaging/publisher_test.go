package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/25x8/carrental/internal/carrental/logger"
	"github.com/25x8/carrental/internal/carrental/models"
)

func TestPublisherBookingChanged(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	pub := NewPublisher(sp, "carrental", logger.Discard())

	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "carrental.booking" {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil || len(key) == 0 {
			return errors.New("event id must be the message key")
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var event models.BookingEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return err
		}
		if event.Type != models.BookingRefundDue || event.BookingID != 12 || string(key) != event.ID {
			return fmt.Errorf("unexpected event %+v", event)
		}
		return nil
	})

	b := &models.Booking{
		ID:            12,
		CarID:         3,
		Status:        models.BookingCancelled,
		PaymentStatus: models.PaymentPaid,
		TotalAmount:   decimal.NewFromInt(150),
	}
	event := models.NewBookingEvent(models.BookingRefundDue, b, 1)
	pub.BookingChanged(context.Background(), event)

	assert.NotEmpty(t, event.ID)
	assert.False(t, event.OccurredAt.IsZero())
	require.NoError(t, pub.Close())
}

func TestPublisherRedemptionChanged(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	pub := NewPublisher(sp, "test", logger.Discard())

	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "test.redemption" {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		return nil
	})

	req := &models.PaymentRequest{ID: 4, PartnerID: 2, Amount: decimal.NewFromInt(100), Status: models.RedemptionPending}
	pub.RedemptionChanged(context.Background(), models.NewRedemptionEvent(models.RedemptionRequested, req))
	require.NoError(t, pub.Close())
}

func TestPublisherLogsSendFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	var buf bytes.Buffer
	log := logger.NewWithOutput("warn", "json", &buf)
	pub := NewPublisher(sp, "carrental", log)

	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	// must not panic or block
	pub.BookingChanged(context.Background(), &models.BookingEvent{Type: models.BookingCreated, BookingID: 9})

	var entry map[string]any
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	assert.Equal(t, "booking event dropped", entry["msg"])
	assert.EqualValues(t, 9, entry["booking_id"])
	assert.Equal(t, logrus.WarnLevel.String(), entry["level"])
	require.NoError(t, pub.Close())
}
