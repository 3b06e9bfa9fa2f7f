package services

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/taxi-booking-backend/internal/models"
	"github.com/smarttransit/taxi-booking-backend/internal/utils"
)

// HistoryStore persists the append-only status history
type HistoryStore interface {
	Append(ctx context.Context, tx sqlx.ExtContext, h *models.BookingStatusHistory) error
	ListByBooking(ctx context.Context, bookingID int64) ([]models.BookingStatusHistory, error)
}

// AuditService records booking status transitions
type AuditService struct {
	history HistoryStore
}

// NewAuditService creates a new audit service
func NewAuditService(history HistoryStore) *AuditService {
	return &AuditService{
		history: history,
	}
}

// Record appends one history row for booking inside tx. oldStatus is nil
// only for the creation row.
func (s *AuditService) Record(
	ctx context.Context,
	tx sqlx.ExtContext,
	booking *models.Booking,
	oldStatus *models.BookingStatus,
	actor models.Actor,
	note *string,
) error {
	entry := &models.BookingStatusHistory{
		BookingID: booking.ID,
		OldStatus: oldStatus,
		NewStatus: booking.Status,
		ActorType: actor.Type,
		ActorID:   optional(actor.ID),
		Note:      note,
		ClientIP:  optional(actor.ClientIP),
	}

	if actor.UserAgent != "" {
		entry.DeviceInfo = models.JSONB(utils.ParseUserAgent(actor.UserAgent).Map())
	}

	if err := s.history.Append(ctx, tx, entry); err != nil {
		return fmt.Errorf("failed to record status change: %w", err)
	}

	return nil
}

// History returns the transitions of a booking, newest first
func (s *AuditService) History(ctx context.Context, bookingID int64) ([]models.BookingStatusHistory, error) {
	return s.history.ListByBooking(ctx, bookingID)
}
