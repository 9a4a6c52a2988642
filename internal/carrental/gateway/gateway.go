// Package gateway simulates the payment provider. Intents are minted in a
// first call and consumed by a second one so a real provider can replace the
// simulation without changing callers.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/25x8/carrental/internal/carrental/apperr"
)

// ErrIntentNotFound is returned by an IntentStore for unknown or expired intents.
var ErrIntentNotFound = errors.New("payment intent not found")

const currencyINR = "INR"

// Intent is a pending payment attempt for one booking.
type Intent struct {
	ID        string          `json:"id"`
	BookingID int64           `json:"booking_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Gateway is the payment provider as seen by the payment service.
type Gateway interface {
	CreateIntent(ctx context.Context, bookingID int64, amount decimal.Decimal) (*Intent, error)
	// ConsumeIntent checks that intentID is live and bound to bookingID, then
	// removes it so it cannot confirm a second time.
	ConsumeIntent(ctx context.Context, bookingID int64, intentID string) (*Intent, error)
}

// IntentStore persists intents until they expire.
type IntentStore interface {
	Save(ctx context.Context, intent *Intent) error
	Get(ctx context.Context, id string) (*Intent, error)
	// Delete reports whether the intent was still present.
	Delete(ctx context.Context, id string) (bool, error)
}

// Simulated is a Gateway with no external provider behind it.
type Simulated struct {
	store IntentStore
	ttl   time.Duration
	now   func() time.Time
}

// NewSimulated creates a simulated gateway whose intents live for ttl.
func NewSimulated(store IntentStore, ttl time.Duration) *Simulated {
	return &Simulated{
		store: store,
		ttl:   ttl,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateIntent mints a new intent for the booking.
func (g *Simulated) CreateIntent(ctx context.Context, bookingID int64, amount decimal.Decimal) (*Intent, error) {
	now := g.now()
	intent := &Intent{
		ID:        uuid.NewString(),
		BookingID: bookingID,
		Amount:    amount,
		Currency:  currencyINR,
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl),
	}
	if err := g.store.Save(ctx, intent); err != nil {
		return nil, fmt.Errorf("save payment intent: %w", err)
	}
	return intent, nil
}

// ConsumeIntent validates and removes the intent.
func (g *Simulated) ConsumeIntent(ctx context.Context, bookingID int64, intentID string) (*Intent, error) {
	if intentID == "" {
		return nil, apperr.Validation("intent_id", "is required")
	}

	intent, err := g.store.Get(ctx, intentID)
	if errors.Is(err, ErrIntentNotFound) {
		return nil, apperr.Validation("intent_id", "unknown or expired payment intent")
	}
	if err != nil {
		return nil, fmt.Errorf("load payment intent: %w", err)
	}

	if intent.BookingID != bookingID {
		return nil, apperr.Validation("intent_id", "payment intent belongs to another booking")
	}
	if !g.now().Before(intent.ExpiresAt) {
		return nil, apperr.Validation("intent_id", "unknown or expired payment intent")
	}

	deleted, err := g.store.Delete(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("consume payment intent: %w", err)
	}
	if !deleted {
		// lost a race with a concurrent confirm
		return nil, apperr.Validation("intent_id", "unknown or expired payment intent")
	}
	return intent, nil
}
