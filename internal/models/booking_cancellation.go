package models

import "time"

// BookingCancellation records why and by whom a booking was cancelled.
// Exactly one row exists for every CANCELLED booking.
type BookingCancellation struct {
	ID              int64     `json:"id" db:"id"`
	BookingID       int64     `json:"booking_id" db:"booking_id"`
	Reason          string    `json:"reason" db:"reason"`
	CancellationFee float64   `json:"cancellation_fee" db:"cancellation_fee"`
	CancelledByType ActorType `json:"cancelled_by_type" db:"cancelled_by_type"`
	CancelledByID   *string   `json:"cancelled_by_id,omitempty" db:"cancelled_by_id"`
	CancelledAt     time.Time `json:"cancelled_at" db:"cancelled_at"`
}
