package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the capability class asserted by the identity provider.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the local mirror of an externally issued identity
type User struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Role      Role      `json:"role" db:"role"`
	IsPartner bool      `json:"is_partner" db:"is_partner"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Actor is the caller of an operation.
type Actor struct {
	UserID int64
	Role   Role
}

// IsAdmin reports whether the actor holds admin capability.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Car represents a listed vehicle. OwnerID is nil for platform-owned cars.
type Car struct {
	ID               int64           `json:"id" db:"id"`
	OwnerID          *int64          `json:"owner_id,omitempty" db:"owner_id"`
	Model            string          `json:"model" db:"model"`
	Location         string          `json:"location" db:"location"`
	PricePerDay      decimal.Decimal `json:"price_per_day" db:"price_per_day"`
	Available        bool            `json:"available" db:"available"`
	AdminDeactivated bool            `json:"admin_deactivated" db:"admin_deactivated"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// OwnedBy reports whether the car belongs to the given partner.
func (c *Car) OwnedBy(partnerID int64) bool {
	return c.OwnerID != nil && *c.OwnerID == partnerID
}
