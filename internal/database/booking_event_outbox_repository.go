package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/taxi-booking-backend/internal/models"
)

// BookingEventOutboxRepository stores lifecycle events until they are relayed
type BookingEventOutboxRepository struct {
	db *sqlx.DB
}

// NewBookingEventOutboxRepository creates a new BookingEventOutboxRepository
func NewBookingEventOutboxRepository(db *sqlx.DB) *BookingEventOutboxRepository {
	return &BookingEventOutboxRepository{db: db}
}

// Enqueue stores an event inside the caller's transaction
func (r *BookingEventOutboxRepository) Enqueue(ctx context.Context, tx sqlx.ExtContext, event *models.BookingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal booking event: %w", err)
	}

	query := `
		INSERT INTO booking_event_outbox (booking_id, booking_ref, event_type, payload, attempts, created_at)
		VALUES ($1, $2, $3, $4, 0, NOW())
	`

	if _, err := tx.ExecContext(ctx, query, event.BookingID, event.BookingRef, event.EventType, string(payload)); err != nil {
		return fmt.Errorf("failed to enqueue booking event: %w", err)
	}

	return nil
}

// FetchPending returns up to limit unpublished events, oldest first
func (r *BookingEventOutboxRepository) FetchPending(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	events := []models.OutboxEvent{}
	query := `
		SELECT id, booking_id, booking_ref, event_type, payload, attempts, created_at, published_at
		FROM booking_event_outbox
		WHERE published_at IS NULL
		ORDER BY id ASC
		LIMIT $1
	`

	if err := r.db.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("failed to fetch pending booking events: %w", err)
	}

	return events, nil
}

// MarkPublished stamps an event as delivered to the broker
func (r *BookingEventOutboxRepository) MarkPublished(ctx context.Context, id int64) error {
	query := `UPDATE booking_event_outbox SET published_at = NOW(), attempts = attempts + 1 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark booking event published: %w", err)
	}
	return nil
}

// MarkFailed records a failed delivery attempt
func (r *BookingEventOutboxRepository) MarkFailed(ctx context.Context, id int64) error {
	query := `UPDATE booking_event_outbox SET attempts = attempts + 1 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to record booking event attempt: %w", err)
	}
	return nil
}
