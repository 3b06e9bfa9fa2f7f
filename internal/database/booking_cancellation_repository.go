package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/taxi-booking-backend/internal/models"
)

// BookingCancellationRepository handles booking cancellation records
type BookingCancellationRepository struct {
	db *sqlx.DB
}

// NewBookingCancellationRepository creates a new BookingCancellationRepository
func NewBookingCancellationRepository(db *sqlx.DB) *BookingCancellationRepository {
	return &BookingCancellationRepository{db: db}
}

// Create inserts the cancellation record for a booking.
// The booking_id column is unique, so a second cancellation fails.
func (r *BookingCancellationRepository) Create(ctx context.Context, tx sqlx.ExtContext, c *models.BookingCancellation) error {
	query := `
		INSERT INTO booking_cancellations (
			booking_id, reason, cancellation_fee, cancelled_by_type, cancelled_by_id, cancelled_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := tx.QueryRowxContext(ctx, query,
		c.BookingID, c.Reason, c.CancellationFee, c.CancelledByType, c.CancelledByID, c.CancelledAt,
	).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrAlreadyCancelled
		}
		return fmt.Errorf("failed to create booking cancellation: %w", err)
	}

	return nil
}

// GetByBookingID retrieves the cancellation for a booking, nil if none exists
func (r *BookingCancellationRepository) GetByBookingID(ctx context.Context, bookingID int64) (*models.BookingCancellation, error) {
	var cancellation models.BookingCancellation
	query := `
		SELECT id, booking_id, reason, cancellation_fee, cancelled_by_type, cancelled_by_id, cancelled_at
		FROM booking_cancellations
		WHERE booking_id = $1
	`

	err := r.db.GetContext(ctx, &cancellation, query, bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking cancellation: %w", err)
	}

	return &cancellation, nil
}
