package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/taxi-booking-backend/internal/models"
)

var (
	// ErrDuplicateBookingID is returned when a generated booking id is already taken
	ErrDuplicateBookingID = errors.New("booking id already exists")

	// ErrVersionConflict is returned when the booking changed since it was read
	ErrVersionConflict = errors.New("booking was modified concurrently")

	// ErrAlreadyCancelled is returned when the booking already has a cancellation
	ErrAlreadyCancelled = errors.New("booking already cancelled")
)

const bookingIDConstraint = "bookings_booking_id_key"

const bookingColumns = `
	id, booking_id, status,
	vehicle_class_id, fare_scheme_id, corporate_id, driver_id, vehicle_id, promo_code_id,
	booked_by, dispatched_by,
	customer_name, customer_email, customer_phone, passenger_count,
	pickup_address, pickup_latitude, pickup_longitude,
	drop_address, drop_latitude, drop_longitude,
	pickup_time, special_remarks, payment_type,
	is_advance_booking, is_test_booking, is_inquiry_only,
	booking_time, dispatched_time, driver_accepted_time, driver_arrived_time,
	start_time, completed_time, eta_minutes,
	total_distance, total_waiting_time, waiting_fee,
	base_fare, distance_fare, additional_fees, discount_amount, total_fare,
	version, created_at, updated_at`

// BookingRepository handles taxi booking database operations
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// InTx runs fn inside a single database transaction
func (r *BookingRepository) InTx(ctx context.Context, fn func(tx sqlx.ExtContext) error) error {
	return RunInTx(ctx, r.db, fn)
}

// Insert creates a new booking and fills in the storage-owned fields
func (r *BookingRepository) Insert(ctx context.Context, tx sqlx.ExtContext, b *models.Booking) error {
	query := `
		INSERT INTO bookings (
			booking_id, status,
			vehicle_class_id, fare_scheme_id, corporate_id, driver_id, vehicle_id, promo_code_id,
			booked_by, dispatched_by,
			customer_name, customer_email, customer_phone, passenger_count,
			pickup_address, pickup_latitude, pickup_longitude,
			drop_address, drop_latitude, drop_longitude,
			pickup_time, special_remarks, payment_type,
			is_advance_booking, is_test_booking, is_inquiry_only,
			booking_time, version
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26, $27, 1
		)
		RETURNING id, version, created_at, updated_at
	`

	err := tx.QueryRowxContext(ctx, query,
		b.BookingID, b.Status,
		b.VehicleClassID, b.FareSchemeID, b.CorporateID, b.DriverID, b.VehicleID, b.PromoCodeID,
		b.BookedBy, b.DispatchedBy,
		b.CustomerName, b.CustomerEmail, b.CustomerPhone, b.PassengerCount,
		b.PickupAddress, b.PickupLatitude, b.PickupLongitude,
		b.DropAddress, b.DropLatitude, b.DropLongitude,
		b.PickupTime, b.SpecialRemarks, b.PaymentType,
		b.IsAdvanceBooking, b.IsTestBooking, b.IsInquiryOnly,
		b.BookingTime,
	).Scan(&b.ID, &b.Version, &b.CreatedAt, &b.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err, bookingIDConstraint) {
			return ErrDuplicateBookingID
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	return nil
}

// GetByID retrieves a booking by its numeric id, nil if it does not exist
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	err := r.db.GetContext(ctx, &booking, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	return &booking, nil
}

// GetByBookingID retrieves a booking by its external booking id, nil if it does not exist
func (r *BookingRepository) GetByBookingID(ctx context.Context, bookingID string) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE booking_id = $1`

	err := r.db.GetContext(ctx, &booking, query, bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	return &booking, nil
}

// Update writes every mutable field of the booking if its stored version still
// equals expectedVersion. The stored version is incremented and copied back.
func (r *BookingRepository) Update(ctx context.Context, tx sqlx.ExtContext, b *models.Booking, expectedVersion int64) error {
	query := `
		UPDATE bookings SET
			booking_id = $3, status = $4,
			vehicle_class_id = $5, fare_scheme_id = $6, corporate_id = $7,
			driver_id = $8, vehicle_id = $9, promo_code_id = $10, dispatched_by = $11,
			customer_name = $12, customer_email = $13, customer_phone = $14, passenger_count = $15,
			pickup_address = $16, pickup_latitude = $17, pickup_longitude = $18,
			drop_address = $19, drop_latitude = $20, drop_longitude = $21,
			pickup_time = $22, special_remarks = $23, payment_type = $24,
			dispatched_time = $25, driver_accepted_time = $26, driver_arrived_time = $27,
			start_time = $28, completed_time = $29, eta_minutes = $30,
			total_distance = $31, total_waiting_time = $32, waiting_fee = $33,
			base_fare = $34, distance_fare = $35, additional_fees = $36,
			discount_amount = $37, total_fare = $38,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`

	err := tx.QueryRowxContext(ctx, query,
		b.ID, expectedVersion,
		b.BookingID, b.Status,
		b.VehicleClassID, b.FareSchemeID, b.CorporateID,
		b.DriverID, b.VehicleID, b.PromoCodeID, b.DispatchedBy,
		b.CustomerName, b.CustomerEmail, b.CustomerPhone, b.PassengerCount,
		b.PickupAddress, b.PickupLatitude, b.PickupLongitude,
		b.DropAddress, b.DropLatitude, b.DropLongitude,
		b.PickupTime, b.SpecialRemarks, b.PaymentType,
		b.DispatchedTime, b.DriverAcceptedTime, b.DriverArrivedTime,
		b.StartTime, b.CompletedTime, b.ETAMinutes,
		b.TotalDistance, b.TotalWaitingTime, b.WaitingFee,
		b.BaseFare, b.DistanceFare, b.AdditionalFees,
		b.DiscountAmount, b.TotalFare,
	).Scan(&b.Version, &b.UpdatedAt)

	if err == sql.ErrNoRows {
		return ErrVersionConflict
	}
	if err != nil {
		if isUniqueViolation(err, bookingIDConstraint) {
			return ErrDuplicateBookingID
		}
		return fmt.Errorf("failed to update booking: %w", err)
	}

	return nil
}
