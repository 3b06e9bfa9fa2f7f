package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/taxi-booking-backend/internal/models"
)

// BookingStatusHistoryRepository stores the append-only booking audit trail.
// Rows are only ever inserted and read.
type BookingStatusHistoryRepository struct {
	db *sqlx.DB
}

// NewBookingStatusHistoryRepository creates a new BookingStatusHistoryRepository
func NewBookingStatusHistoryRepository(db *sqlx.DB) *BookingStatusHistoryRepository {
	return &BookingStatusHistoryRepository{db: db}
}

// Append inserts one history row inside the caller's transaction
func (r *BookingStatusHistoryRepository) Append(ctx context.Context, tx sqlx.ExtContext, h *models.BookingStatusHistory) error {
	query := `
		INSERT INTO booking_status_history (
			booking_id, old_status, new_status, actor_type, actor_id, note, client_ip, device_info, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id, created_at
	`

	err := tx.QueryRowxContext(ctx, query,
		h.BookingID, h.OldStatus, h.NewStatus, h.ActorType, h.ActorID, h.Note, h.ClientIP, h.DeviceInfo,
	).Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append booking status history: %w", err)
	}

	return nil
}

// ListByBooking returns the history of a booking, newest first
func (r *BookingStatusHistoryRepository) ListByBooking(ctx context.Context, bookingID int64) ([]models.BookingStatusHistory, error) {
	history := []models.BookingStatusHistory{}
	query := `
		SELECT id, booking_id, old_status, new_status, actor_type, actor_id, note, client_ip, device_info, created_at
		FROM booking_status_history
		WHERE booking_id = $1
		ORDER BY created_at DESC, id DESC
	`

	if err := r.db.SelectContext(ctx, &history, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list booking status history: %w", err)
	}

	return history, nil
}
