package models

import (
	"time"

	"github.com/google/uuid"
)

// ActorType identifies the kind of party that caused a transition
type ActorType string

const (
	ActorTypeCustomer   ActorType = "CUSTOMER"
	ActorTypeDriver     ActorType = "DRIVER"
	ActorTypeSystemUser ActorType = "SYSTEM_USER"
	ActorTypeSystem     ActorType = "SYSTEM"
)

// IsValid returns true if the actor type is known
func (a ActorType) IsValid() bool {
	switch a {
	case ActorTypeCustomer, ActorTypeDriver, ActorTypeSystemUser, ActorTypeSystem:
		return true
	}
	return false
}

// Actor is the party performing a lifecycle operation, plus the request
// metadata stored alongside the audit row.
type Actor struct {
	Type      ActorType
	ID        string
	UserID    *uuid.UUID
	ClientIP  string
	UserAgent string

	// OwnBookingsOnly limits the caller to bookings they booked themselves.
	// It follows the authenticated user, not an overridden Type.
	OwnBookingsOnly bool
}

// CanAccess reports whether the actor may change booking
func (a Actor) CanAccess(booking *Booking) bool {
	if !a.OwnBookingsOnly {
		return true
	}
	return a.UserID != nil && booking.BookedBy != nil && *booking.BookedBy == *a.UserID
}

// BookingStatusHistory is one immutable row of the booking audit trail.
// OldStatus is nil only for the creation row.
type BookingStatusHistory struct {
	ID         int64          `json:"id" db:"id"`
	BookingID  int64          `json:"booking_id" db:"booking_id"`
	OldStatus  *BookingStatus `json:"old_status" db:"old_status"`
	NewStatus  BookingStatus  `json:"new_status" db:"new_status"`
	ActorType  ActorType      `json:"actor_type" db:"actor_type"`
	ActorID    *string        `json:"actor_id,omitempty" db:"actor_id"`
	Note       *string        `json:"note,omitempty" db:"note"`
	ClientIP   *string        `json:"client_ip,omitempty" db:"client_ip"`
	DeviceInfo JSONB          `json:"device_info,omitempty" db:"device_info"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}
