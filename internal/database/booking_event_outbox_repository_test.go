package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/smarttransit/taxi-booking-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingEventOutboxRepository(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewBookingEventOutboxRepository(db)
	ctx := context.Background()

	t.Run("Enqueue", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO booking_event_outbox`).
			WithArgs(int64(7), "BK-GEN-1ABCD", models.EventBookingCancelled, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := repo.Enqueue(ctx, db, &models.BookingEvent{
			EventType:  models.EventBookingCancelled,
			BookingID:  7,
			BookingRef: "BK-GEN-1ABCD",
			NewStatus:  models.BookingStatusCancelled,
		})
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Fetch Pending", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(`SELECT (.+) FROM booking_event_outbox WHERE published_at IS NULL`).
			WithArgs(50).
			WillReturnRows(sqlmock.NewRows([]string{"id", "booking_id", "booking_ref", "event_type", "payload", "attempts", "created_at", "published_at"}).
				AddRow(int64(3), int64(7), "BK-GEN-1ABCD", "BOOKING_CREATED", []byte(`{"event_type":"BOOKING_CREATED"}`), 0, now, nil))

		events, err := repo.FetchPending(ctx, 50)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, models.EventBookingCreated, events[0].EventType)
		assert.Equal(t, int64(7), events[0].BookingID)
		assert.Nil(t, events[0].PublishedAt)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Mark Published And Failed", func(t *testing.T) {
		mock.ExpectExec(`UPDATE booking_event_outbox SET published_at = NOW\(\)`).
			WithArgs(int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE booking_event_outbox SET attempts = attempts \+ 1`).
			WithArgs(int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.MarkPublished(ctx, 3))
		require.NoError(t, repo.MarkFailed(ctx, 4))

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
