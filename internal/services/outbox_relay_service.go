package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/taxi-booking-backend/internal/metrics"
	"github.com/smarttransit/taxi-booking-backend/internal/models"
	"github.com/smarttransit/taxi-booking-backend/pkg/events"
)

// OutboxStore reads and acknowledges stored lifecycle events
type OutboxStore interface {
	FetchPending(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64) error
}

// OutboxRelayService publishes stored lifecycle events to the broker
type OutboxRelayService struct {
	outbox    OutboxStore
	publisher events.Publisher
	batchSize int
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	mu        sync.Mutex
}

// NewOutboxRelayService creates a new relay
func NewOutboxRelayService(outbox OutboxStore, publisher events.Publisher, batchSize int, m *metrics.Metrics, logger *logrus.Logger) *OutboxRelayService {
	if batchSize < 1 {
		batchSize = 100
	}

	return &OutboxRelayService{
		outbox:    outbox,
		publisher: publisher,
		batchSize: batchSize,
		metrics:   m,
		logger:    logger,
	}
}

// RelayPending publishes one batch in id order and returns how many were
// delivered. A failed event is counted and left for the next run; later
// events of the same booking wait behind it.
func (s *OutboxRelayService) RelayPending(ctx context.Context) (int, error) {
	// Overlapping runs would publish the same rows twice
	if !s.mu.TryLock() {
		return 0, nil
	}
	defer s.mu.Unlock()

	pending, err := s.outbox.FetchPending(ctx, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch outbox: %w", err)
	}

	published := 0
	// Keyed on the numeric id; the booking ref changes with the vehicle class
	blocked := make(map[int64]bool)

	for _, event := range pending {
		if blocked[event.BookingID] {
			continue
		}

		log := s.logger.WithFields(logrus.Fields{
			"outbox_id":   event.ID,
			"booking_id":  event.BookingID,
			"booking_ref": event.BookingRef,
			"event_type":  event.EventType,
		})

		err := s.publisher.Publish(ctx, events.Message{
			RoutingKey: event.EventType.RoutingKey(),
			MessageID:  strconv.FormatInt(event.ID, 10),
			Body:       event.Payload,
			Timestamp:  event.CreatedAt,
		})
		if err != nil {
			blocked[event.BookingID] = true
			s.metrics.OutboxFailuresTotal.Inc()
			log.WithError(err).Warn("Failed to publish booking event")

			if markErr := s.outbox.MarkFailed(ctx, event.ID); markErr != nil {
				log.WithError(markErr).Error("Failed to record outbox attempt")
			}
			continue
		}

		if err := s.outbox.MarkPublished(ctx, event.ID); err != nil {
			// Published but not acknowledged; consumers see it again next run
			blocked[event.BookingID] = true
			log.WithError(err).Error("Failed to mark booking event published")
			continue
		}

		s.metrics.OutboxPublishedTotal.Inc()
		published++
	}

	return published, nil
}
