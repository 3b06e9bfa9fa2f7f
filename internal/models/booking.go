package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the lifecycle status of a taxi booking
type BookingStatus string

const (
	BookingStatusInquiry            BookingStatus = "INQUIRY"
	BookingStatusPending            BookingStatus = "PENDING"
	BookingStatusDispatched         BookingStatus = "DISPATCHED"
	BookingStatusEnroute            BookingStatus = "ENROUTE"
	BookingStatusWaitingForCustomer BookingStatus = "WAITING_FOR_CUSTOMER"
	BookingStatusPassengerOnboard   BookingStatus = "PASSENGER_ONBOARD"
	BookingStatusCompleted          BookingStatus = "COMPLETED"
	BookingStatusCancelled          BookingStatus = "CANCELLED"
)

// AllBookingStatuses lists every status in lifecycle order
var AllBookingStatuses = []BookingStatus{
	BookingStatusInquiry,
	BookingStatusPending,
	BookingStatusDispatched,
	BookingStatusEnroute,
	BookingStatusWaitingForCustomer,
	BookingStatusPassengerOnboard,
	BookingStatusCompleted,
	BookingStatusCancelled,
}

// IsValid returns true if the status is one of the known lifecycle statuses.
func (s BookingStatus) IsValid() bool {
	for _, known := range AllBookingStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal returns true for COMPLETED and CANCELLED.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

func (s BookingStatus) String() string {
	return string(s)
}

// ParseBookingStatus converts a string to a BookingStatus, case-insensitively.
func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %s", s)
	}
	return status, nil
}

// PaymentType represents how the customer intends to pay
type PaymentType string

const (
	PaymentTypeCash      PaymentType = "CASH"
	PaymentTypeCard      PaymentType = "CARD"
	PaymentTypeCorporate PaymentType = "CORPORATE"
)

// Booking is the aggregate root of the taxi booking lifecycle.
// Reference ids point at entities owned by other services.
type Booking struct {
	ID        int64         `json:"id" db:"id"`
	BookingID string        `json:"booking_id" db:"booking_id"`
	Status    BookingStatus `json:"status" db:"status"`

	VehicleClassID *int64     `json:"vehicle_class_id,omitempty" db:"vehicle_class_id"`
	FareSchemeID   *int64     `json:"fare_scheme_id,omitempty" db:"fare_scheme_id"`
	CorporateID    *int64     `json:"corporate_id,omitempty" db:"corporate_id"`
	DriverID       *int64     `json:"driver_id,omitempty" db:"driver_id"`
	VehicleID      *int64     `json:"vehicle_id,omitempty" db:"vehicle_id"`
	PromoCodeID    *int64     `json:"promo_code_id,omitempty" db:"promo_code_id"`
	BookedBy       *uuid.UUID `json:"booked_by,omitempty" db:"booked_by"`
	DispatchedBy   *uuid.UUID `json:"dispatched_by,omitempty" db:"dispatched_by"`

	CustomerName     string       `json:"customer_name" db:"customer_name"`
	CustomerEmail    *string      `json:"customer_email,omitempty" db:"customer_email"`
	CustomerPhone    *string      `json:"customer_phone,omitempty" db:"customer_phone"`
	PassengerCount   int          `json:"passenger_count" db:"passenger_count"`
	PickupAddress    string       `json:"pickup_address" db:"pickup_address"`
	PickupLatitude   *float64     `json:"pickup_latitude,omitempty" db:"pickup_latitude"`
	PickupLongitude  *float64     `json:"pickup_longitude,omitempty" db:"pickup_longitude"`
	DropAddress      *string      `json:"drop_address,omitempty" db:"drop_address"`
	DropLatitude     *float64     `json:"drop_latitude,omitempty" db:"drop_latitude"`
	DropLongitude    *float64     `json:"drop_longitude,omitempty" db:"drop_longitude"`
	PickupTime       *time.Time   `json:"pickup_time,omitempty" db:"pickup_time"`
	SpecialRemarks   *string      `json:"special_remarks,omitempty" db:"special_remarks"`
	PaymentType      *PaymentType `json:"payment_type,omitempty" db:"payment_type"`
	IsAdvanceBooking bool         `json:"is_advance_booking" db:"is_advance_booking"`
	IsTestBooking    bool         `json:"is_test_booking" db:"is_test_booking"`
	IsInquiryOnly    bool         `json:"is_inquiry_only" db:"is_inquiry_only"`

	// Lifecycle timestamps, each stamped the first time its transition occurs
	BookingTime        time.Time  `json:"booking_time" db:"booking_time"`
	DispatchedTime     *time.Time `json:"dispatched_time,omitempty" db:"dispatched_time"`
	DriverAcceptedTime *time.Time `json:"driver_accepted_time,omitempty" db:"driver_accepted_time"`
	DriverArrivedTime  *time.Time `json:"driver_arrived_time,omitempty" db:"driver_arrived_time"`
	StartTime          *time.Time `json:"start_time,omitempty" db:"start_time"`
	CompletedTime      *time.Time `json:"completed_time,omitempty" db:"completed_time"`
	ETAMinutes         *int       `json:"eta_minutes,omitempty" db:"eta_minutes"`

	// Trip and fare figures, written once at completion
	TotalDistance    *float64 `json:"total_distance,omitempty" db:"total_distance"`
	TotalWaitingTime *int     `json:"total_waiting_time,omitempty" db:"total_waiting_time"`
	WaitingFee       *float64 `json:"waiting_fee,omitempty" db:"waiting_fee"`
	BaseFare         *float64 `json:"base_fare,omitempty" db:"base_fare"`
	DistanceFare     *float64 `json:"distance_fare,omitempty" db:"distance_fare"`
	AdditionalFees   *float64 `json:"additional_fees,omitempty" db:"additional_fees"`
	DiscountAmount   *float64 `json:"discount_amount,omitempty" db:"discount_amount"`
	TotalFare        *float64 `json:"total_fare,omitempty" db:"total_fare"`

	Version   int64     `json:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CanUpdate reports whether trip details may still be edited.
func (b *Booking) CanUpdate() bool {
	switch b.Status {
	case BookingStatusInquiry, BookingStatusPending, BookingStatusDispatched:
		return true
	}
	return false
}

// CanComplete reports whether the trip may be closed out.
func (b *Booking) CanComplete() bool {
	return b.Status == BookingStatusPassengerOnboard || b.Status == BookingStatusEnroute
}

// CanBeCancelled reports whether the booking can still be cancelled.
// A second cancellation is refused so at most one cancellation row exists.
func (b *Booking) CanBeCancelled() bool {
	return !b.Status.IsTerminal()
}

// ApplyStatus moves the booking to status and stamps the timestamp that
// belongs to it, only if that timestamp is still unset.
func (b *Booking) ApplyStatus(status BookingStatus, now time.Time) {
	b.Status = status

	switch status {
	case BookingStatusDispatched:
		if b.DispatchedTime == nil {
			b.DispatchedTime = &now
		}
	case BookingStatusEnroute:
		if b.DriverAcceptedTime == nil {
			b.DriverAcceptedTime = &now
		}
	case BookingStatusWaitingForCustomer:
		if b.DriverArrivedTime == nil {
			b.DriverArrivedTime = &now
		}
	case BookingStatusPassengerOnboard:
		if b.StartTime == nil {
			b.StartTime = &now
		}
	case BookingStatusCompleted:
		if b.CompletedTime == nil {
			completed := now
			if b.DispatchedTime != nil && completed.Before(*b.DispatchedTime) {
				completed = *b.DispatchedTime
			}
			b.CompletedTime = &completed
		}
	}
}

// Dispatch assigns the driver and vehicle and moves the booking to DISPATCHED.
func (b *Booking) Dispatch(driverID, vehicleID int64, dispatchedBy *uuid.UUID, etaMinutes *int, now time.Time) {
	b.DriverID = &driverID
	b.VehicleID = &vehicleID
	b.DispatchedBy = dispatchedBy
	b.ETAMinutes = etaMinutes
	b.ApplyStatus(BookingStatusDispatched, now)
}

// Complete records the caller-supplied trip figures and moves the booking to COMPLETED.
func (b *Booking) Complete(req *CompleteBookingRequest, now time.Time) {
	b.TotalDistance = req.TotalDistance
	b.TotalWaitingTime = req.TotalWaitingTime
	b.WaitingFee = req.WaitingFee
	b.BaseFare = req.BaseFare
	b.DistanceFare = req.DistanceFare
	b.AdditionalFees = req.AdditionalFees
	b.DiscountAmount = req.DiscountAmount
	b.TotalFare = req.TotalFare
	b.ApplyStatus(BookingStatusCompleted, now)
}

// InitialStatus returns the status a new booking starts in.
func InitialStatus(inquiryOnly bool) BookingStatus {
	if inquiryOnly {
		return BookingStatusInquiry
	}
	return BookingStatusPending
}
