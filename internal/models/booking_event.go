package models

import (
	"strings"
	"time"
)

// BookingEventType names a lifecycle event published to other services
type BookingEventType string

const (
	EventBookingCreated    BookingEventType = "BOOKING_CREATED"
	EventBookingUpdated    BookingEventType = "BOOKING_UPDATED"
	EventBookingDispatched BookingEventType = "BOOKING_DISPATCHED"
	EventStatusChanged     BookingEventType = "STATUS_CHANGED"
	EventBookingCompleted  BookingEventType = "BOOKING_COMPLETED"
	EventBookingCancelled  BookingEventType = "BOOKING_CANCELLED"
)

// RoutingKey returns the broker routing key, e.g. booking.booking_dispatched
func (t BookingEventType) RoutingKey() string {
	return "booking." + strings.ToLower(string(t))
}

// BookingEvent is the payload emitted for every accepted lifecycle change
type BookingEvent struct {
	EventType  BookingEventType `json:"event_type"`
	BookingID  int64            `json:"booking_id"`
	BookingRef string           `json:"booking_ref"`
	OldStatus  *BookingStatus   `json:"old_status,omitempty"`
	NewStatus  BookingStatus    `json:"new_status"`
	ActorType  ActorType        `json:"actor_type"`
	ActorID    string           `json:"actor_id,omitempty"`
	Version    int64            `json:"version"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// OutboxEvent is a stored BookingEvent awaiting relay to the broker
type OutboxEvent struct {
	ID          int64            `json:"id" db:"id"`
	BookingID   int64            `json:"booking_id" db:"booking_id"`
	BookingRef  string           `json:"booking_ref" db:"booking_ref"`
	EventType   BookingEventType `json:"event_type" db:"event_type"`
	Payload     []byte           `json:"payload" db:"payload"`
	Attempts    int              `json:"attempts" db:"attempts"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	PublishedAt *time.Time       `json:"published_at,omitempty" db:"published_at"`
}
