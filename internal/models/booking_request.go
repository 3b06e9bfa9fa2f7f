package models

import (
	"errors"
	"strings"
	"time"
)

// CreateBookingRequest represents the request to create a taxi booking
type CreateBookingRequest struct {
	VehicleClassID   *int64       `json:"vehicle_class_id,omitempty"`
	FareSchemeID     *int64       `json:"fare_scheme_id,omitempty"`
	CorporateID      *int64       `json:"corporate_id,omitempty"`
	PromoCodeID      *int64       `json:"promo_code_id,omitempty"`
	CustomerName     string       `json:"customer_name" binding:"required,max=150"`
	CustomerEmail    *string      `json:"customer_email,omitempty" binding:"omitempty,email"`
	CustomerPhone    *string      `json:"customer_phone,omitempty" binding:"omitempty,lk_phone"`
	PassengerCount   int          `json:"passenger_count" binding:"omitempty,min=1,max=10"`
	PickupAddress    string       `json:"pickup_address" binding:"required"`
	PickupLatitude   *float64     `json:"pickup_latitude,omitempty" binding:"omitempty,latitude"`
	PickupLongitude  *float64     `json:"pickup_longitude,omitempty" binding:"omitempty,longitude"`
	DropAddress      *string      `json:"drop_address,omitempty"`
	DropLatitude     *float64     `json:"drop_latitude,omitempty" binding:"omitempty,latitude"`
	DropLongitude    *float64     `json:"drop_longitude,omitempty" binding:"omitempty,longitude"`
	PickupTime       *time.Time   `json:"pickup_time,omitempty"`
	SpecialRemarks   *string      `json:"special_remarks,omitempty"`
	PaymentType      *PaymentType `json:"payment_type,omitempty" binding:"omitempty,oneof=CASH CARD CORPORATE"`
	IsAdvanceBooking bool         `json:"is_advance_booking"`
	IsTestBooking    bool         `json:"is_test_booking"`
	IsInquiryOnly    bool         `json:"is_inquiry_only"`
}

// Validate validates the create booking request
func (r *CreateBookingRequest) Validate() error {
	if r.CustomerName == "" {
		return errors.New("customer_name is required")
	}

	if r.PickupAddress == "" {
		return errors.New("pickup_address is required")
	}

	if r.PassengerCount < 0 || r.PassengerCount > 10 {
		return errors.New("passenger_count must be between 1 and 10")
	}

	if r.IsAdvanceBooking && r.PickupTime == nil {
		return errors.New("pickup_time is required for advance bookings")
	}

	return nil
}

// UpdateBookingRequest edits trip details. Nil fields are left untouched.
type UpdateBookingRequest struct {
	VehicleClassID  *int64       `json:"vehicle_class_id,omitempty"`
	FareSchemeID    *int64       `json:"fare_scheme_id,omitempty"`
	CorporateID     *int64       `json:"corporate_id,omitempty"`
	PromoCodeID     *int64       `json:"promo_code_id,omitempty"`
	CustomerName    *string      `json:"customer_name,omitempty" binding:"omitempty,max=150"`
	CustomerEmail   *string      `json:"customer_email,omitempty" binding:"omitempty,email"`
	CustomerPhone   *string      `json:"customer_phone,omitempty" binding:"omitempty,lk_phone"`
	PassengerCount  *int         `json:"passenger_count,omitempty" binding:"omitempty,min=1,max=10"`
	PickupAddress   *string      `json:"pickup_address,omitempty"`
	PickupLatitude  *float64     `json:"pickup_latitude,omitempty" binding:"omitempty,latitude"`
	PickupLongitude *float64     `json:"pickup_longitude,omitempty" binding:"omitempty,longitude"`
	DropAddress     *string      `json:"drop_address,omitempty"`
	DropLatitude    *float64     `json:"drop_latitude,omitempty" binding:"omitempty,latitude"`
	DropLongitude   *float64     `json:"drop_longitude,omitempty" binding:"omitempty,longitude"`
	PickupTime      *time.Time   `json:"pickup_time,omitempty"`
	SpecialRemarks  *string      `json:"special_remarks,omitempty"`
	PaymentType     *PaymentType `json:"payment_type,omitempty" binding:"omitempty,oneof=CASH CARD CORPORATE"`
	Version         *int64       `json:"version,omitempty"`
}

// Validate rejects blanking the fields a booking cannot exist without
func (r *UpdateBookingRequest) Validate() error {
	if r.CustomerName != nil && strings.TrimSpace(*r.CustomerName) == "" {
		return errors.New("customer_name cannot be empty")
	}

	if r.PickupAddress != nil && strings.TrimSpace(*r.PickupAddress) == "" {
		return errors.New("pickup_address cannot be empty")
	}

	return nil
}

// ApplyTo copies the non-nil fields onto the booking
func (r *UpdateBookingRequest) ApplyTo(b *Booking) {
	if r.VehicleClassID != nil {
		b.VehicleClassID = r.VehicleClassID
	}
	if r.FareSchemeID != nil {
		b.FareSchemeID = r.FareSchemeID
	}
	if r.CorporateID != nil {
		b.CorporateID = r.CorporateID
	}
	if r.PromoCodeID != nil {
		b.PromoCodeID = r.PromoCodeID
	}
	if r.CustomerName != nil {
		b.CustomerName = *r.CustomerName
	}
	if r.CustomerEmail != nil {
		b.CustomerEmail = r.CustomerEmail
	}
	if r.CustomerPhone != nil {
		b.CustomerPhone = r.CustomerPhone
	}
	if r.PassengerCount != nil {
		b.PassengerCount = *r.PassengerCount
	}
	if r.PickupAddress != nil {
		b.PickupAddress = *r.PickupAddress
	}
	if r.PickupLatitude != nil {
		b.PickupLatitude = r.PickupLatitude
	}
	if r.PickupLongitude != nil {
		b.PickupLongitude = r.PickupLongitude
	}
	if r.DropAddress != nil {
		b.DropAddress = r.DropAddress
	}
	if r.DropLatitude != nil {
		b.DropLatitude = r.DropLatitude
	}
	if r.DropLongitude != nil {
		b.DropLongitude = r.DropLongitude
	}
	if r.PickupTime != nil {
		b.PickupTime = r.PickupTime
	}
	if r.SpecialRemarks != nil {
		b.SpecialRemarks = r.SpecialRemarks
	}
	if r.PaymentType != nil {
		b.PaymentType = r.PaymentType
	}
}

// DispatchBookingRequest assigns a driver and vehicle to a booking
type DispatchBookingRequest struct {
	DriverID   int64   `json:"driver_id" binding:"required,min=1"`
	VehicleID  int64   `json:"vehicle_id" binding:"required,min=1"`
	ETAMinutes *int    `json:"eta_minutes,omitempty" binding:"omitempty,min=0"`
	Note       *string `json:"note,omitempty"`
	Version    *int64  `json:"version,omitempty"`
}

// UpdateStatusRequest is a generic in-trip transition
type UpdateStatusRequest struct {
	Status    string     `json:"status" binding:"required,booking_status"`
	ActorType *ActorType `json:"actor_type,omitempty"`
	ActorID   *string    `json:"actor_id,omitempty"`
	Note      *string    `json:"note,omitempty"`
	Version   *int64     `json:"version,omitempty"`
}

// CompleteBookingRequest carries the trip figures reported by the caller.
// Fares are stored as given.
type CompleteBookingRequest struct {
	TotalDistance    *float64 `json:"total_distance,omitempty" binding:"omitempty,min=0"`
	TotalWaitingTime *int     `json:"total_waiting_time,omitempty" binding:"omitempty,min=0"`
	WaitingFee       *float64 `json:"waiting_fee,omitempty" binding:"omitempty,min=0"`
	BaseFare         *float64 `json:"base_fare,omitempty" binding:"omitempty,min=0"`
	DistanceFare     *float64 `json:"distance_fare,omitempty" binding:"omitempty,min=0"`
	AdditionalFees   *float64 `json:"additional_fees,omitempty" binding:"omitempty,min=0"`
	DiscountAmount   *float64 `json:"discount_amount,omitempty" binding:"omitempty,min=0"`
	TotalFare        *float64 `json:"total_fare,omitempty" binding:"omitempty,min=0"`
	Note             *string  `json:"note,omitempty"`
	Version          *int64   `json:"version,omitempty"`
}

// CancelBookingRequest represents the request to cancel a booking
type CancelBookingRequest struct {
	Reason          string     `json:"reason" binding:"required,max=500"`
	CancellationFee *float64   `json:"cancellation_fee,omitempty" binding:"omitempty,min=0"`
	CancelledByType *ActorType `json:"cancelled_by_type,omitempty"`
	CancelledByID   *string    `json:"cancelled_by_id,omitempty"`
	Version         *int64     `json:"version,omitempty"`
}
