package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/taxi-booking-backend/internal/database"
	"github.com/smarttransit/taxi-booking-backend/internal/domain"
	"github.com/smarttransit/taxi-booking-backend/internal/metrics"
	"github.com/smarttransit/taxi-booking-backend/internal/models"
	"github.com/smarttransit/taxi-booking-backend/pkg/refclient"
)

// BookingStore persists bookings with optimistic versioning
type BookingStore interface {
	InTx(ctx context.Context, fn func(tx sqlx.ExtContext) error) error
	Insert(ctx context.Context, tx sqlx.ExtContext, b *models.Booking) error
	GetByID(ctx context.Context, id int64) (*models.Booking, error)
	GetByBookingID(ctx context.Context, bookingID string) (*models.Booking, error)
	Update(ctx context.Context, tx sqlx.ExtContext, b *models.Booking, expectedVersion int64) error
}

// CancellationStore persists the single cancellation record of a booking
type CancellationStore interface {
	Create(ctx context.Context, tx sqlx.ExtContext, c *models.BookingCancellation) error
	GetByBookingID(ctx context.Context, bookingID int64) (*models.BookingCancellation, error)
}

// EventOutbox stores lifecycle events in the booking's transaction
type EventOutbox interface {
	Enqueue(ctx context.Context, tx sqlx.ExtContext, event *models.BookingEvent) error
}

// BookingLifecycleConfig holds configuration for the lifecycle service
type BookingLifecycleConfig struct {
	IDRetryAttempts int // Booking id regenerations on collision (default 3)
}

// DefaultBookingLifecycleConfig returns default configuration
func DefaultBookingLifecycleConfig() BookingLifecycleConfig {
	return BookingLifecycleConfig{
		IDRetryAttempts: 3,
	}
}

// BookingLifecycleService owns the booking state machine
type BookingLifecycleService struct {
	bookings      BookingStore
	cancellations CancellationStore
	outbox        EventOutbox
	audit         *AuditService
	identifier    *BookingIdentifier
	refs          ReferenceLookup
	enricher      *ReferenceEnricher
	notifier      Notifier
	metrics       *metrics.Metrics
	config        BookingLifecycleConfig
	logger        *logrus.Logger
	now           func() time.Time
}

// NewBookingLifecycleService creates a new lifecycle service
func NewBookingLifecycleService(
	bookings BookingStore,
	cancellations CancellationStore,
	outbox EventOutbox,
	audit *AuditService,
	identifier *BookingIdentifier,
	refs ReferenceLookup,
	enricher *ReferenceEnricher,
	notifier Notifier,
	m *metrics.Metrics,
	config BookingLifecycleConfig,
	logger *logrus.Logger,
) *BookingLifecycleService {
	if config.IDRetryAttempts < 1 {
		config.IDRetryAttempts = 1
	}

	return &BookingLifecycleService{
		bookings:      bookings,
		cancellations: cancellations,
		outbox:        outbox,
		audit:         audit,
		identifier:    identifier,
		refs:          refs,
		enricher:      enricher,
		notifier:      notifier,
		metrics:       m,
		config:        config,
		logger:        logger,
		now:           time.Now,
	}
}

// mutation describes one accepted write and the rows that go with it
type mutation struct {
	operation    string
	event        models.BookingEventType
	oldStatus    *models.BookingStatus
	actor        models.Actor
	note         *string
	audited      bool
	cancellation *models.BookingCancellation
}

// ============================================================================
// CREATE
// ============================================================================

// Create validates the references, assigns a booking id and stores the new booking
func (s *BookingLifecycleService) Create(
	ctx context.Context,
	req *models.CreateBookingRequest,
	actor models.Actor,
) (*models.BookingView, error) {
	defer s.observe("create")()

	if err := req.Validate(); err != nil {
		return nil, domain.ValidationError{Msg: err.Error(), Err: err}
	}

	// 1. Mandatory lookups
	var class *refclient.VehicleClass
	if req.VehicleClassID != nil {
		resolved, err := s.refs.GetVehicleClass(ctx, *req.VehicleClassID)
		if err != nil {
			return nil, notFound("vehicle_class", *req.VehicleClassID, err)
		}
		class = resolved
	}
	if req.CorporateID != nil {
		if _, err := s.refs.GetCorporate(ctx, *req.CorporateID); err != nil {
			return nil, notFound("corporate", *req.CorporateID, err)
		}
	}

	// 2. Build booking
	now := s.now()
	passengers := req.PassengerCount
	if passengers == 0 {
		passengers = 1
	}
	booking := &models.Booking{
		Status:           models.InitialStatus(req.IsInquiryOnly),
		VehicleClassID:   req.VehicleClassID,
		FareSchemeID:     req.FareSchemeID,
		CorporateID:      req.CorporateID,
		PromoCodeID:      req.PromoCodeID,
		BookedBy:         actor.UserID,
		CustomerName:     strings.TrimSpace(req.CustomerName),
		CustomerEmail:    req.CustomerEmail,
		CustomerPhone:    req.CustomerPhone,
		PassengerCount:   passengers,
		PickupAddress:    strings.TrimSpace(req.PickupAddress),
		PickupLatitude:   req.PickupLatitude,
		PickupLongitude:  req.PickupLongitude,
		DropAddress:      req.DropAddress,
		DropLatitude:     req.DropLatitude,
		DropLongitude:    req.DropLongitude,
		PickupTime:       req.PickupTime,
		SpecialRemarks:   req.SpecialRemarks,
		PaymentType:      req.PaymentType,
		IsAdvanceBooking: req.IsAdvanceBooking,
		IsTestBooking:    req.IsTestBooking,
		IsInquiryOnly:    req.IsInquiryOnly,
		BookingTime:      now,
	}
	classTag := s.identifier.Identify(req.VehicleClassID, class)

	// 3. Persist, regenerating the id on collision
	err := s.withFreshBookingID(classTag, booking, func() error {
		return s.commit(ctx, booking, 0, mutation{
			operation: "create",
			event:     models.EventBookingCreated,
			actor:     actor,
			audited:   true,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.BookingID,
		"status":     booking.Status,
		"actor_type": actor.Type,
	}).Info("Booking created")

	// 4. Build view and notify
	view := s.enricher.Enrich(ctx, booking)
	s.notifier.Notify(ctx, view, models.TemplateBookingCreated)

	return view, nil
}

// ============================================================================
// UPDATE
// ============================================================================

// Update edits trip details. A vehicle class change regenerates the booking id.
// Edits are not status transitions and write no history row.
func (s *BookingLifecycleService) Update(
	ctx context.Context,
	ref string,
	req *models.UpdateBookingRequest,
	actor models.Actor,
) (*models.BookingView, error) {
	defer s.observe("update")()

	if err := req.Validate(); err != nil {
		return nil, domain.ValidationError{Msg: err.Error(), Err: err}
	}

	booking, err := s.loadFor(ctx, ref, req.Version, actor)
	if err != nil {
		return nil, err
	}

	if !booking.CanUpdate() {
		return nil, domain.InvalidStateError{Operation: "update", Status: booking.Status.String()}
	}

	classChanged := req.VehicleClassID != nil &&
		(booking.VehicleClassID == nil || *booking.VehicleClassID != *req.VehicleClassID)

	var classTag string
	if classChanged {
		class, err := s.refs.GetVehicleClass(ctx, *req.VehicleClassID)
		if err != nil {
			return nil, notFound("vehicle_class", *req.VehicleClassID, err)
		}
		classTag = s.identifier.Identify(req.VehicleClassID, class)
	}

	if req.CorporateID != nil && (booking.CorporateID == nil || *booking.CorporateID != *req.CorporateID) {
		if _, err := s.refs.GetCorporate(ctx, *req.CorporateID); err != nil {
			return nil, notFound("corporate", *req.CorporateID, err)
		}
	}

	expected := booking.Version
	req.ApplyTo(booking)

	write := func() error {
		return s.commit(ctx, booking, expected, mutation{
			operation: "update",
			event:     models.EventBookingUpdated,
			oldStatus: statusPtr(booking.Status),
			actor:     actor,
		})
	}
	if classChanged {
		previous := booking.BookingID
		err = s.withFreshBookingID(classTag, booking, write)
		if err == nil {
			s.logger.WithFields(logrus.Fields{
				"old_booking_id": previous,
				"booking_id":     booking.BookingID,
			}).Info("Booking id regenerated after vehicle class change")
		}
	} else {
		err = write()
	}
	if err != nil {
		return nil, err
	}

	s.logger.WithField("booking_id", booking.BookingID).Info("Booking updated")

	return s.view(ctx, booking, nil), nil
}

// ============================================================================
// DISPATCH
// ============================================================================

// Dispatch assigns a driver and vehicle. Re-dispatching an already assigned
// booking is allowed; terminal bookings are refused.
func (s *BookingLifecycleService) Dispatch(
	ctx context.Context,
	ref string,
	req *models.DispatchBookingRequest,
	actor models.Actor,
) (*models.BookingView, error) {
	defer s.observe("dispatch")()

	booking, err := s.load(ctx, ref, req.Version)
	if err != nil {
		return nil, err
	}

	if booking.Status.IsTerminal() {
		return nil, domain.InvalidStateError{Operation: "dispatch", Status: booking.Status.String()}
	}

	// 1. Driver must exist and be usable
	driver, err := s.refs.GetDriver(ctx, req.DriverID)
	if err != nil {
		return nil, notFound("driver", req.DriverID, err)
	}
	if driver.IsBlocked {
		return nil, domain.UnavailableError{Resource: "driver", Reason: "driver is blocked"}
	}
	if !driver.IsActive {
		return nil, domain.UnavailableError{Resource: "driver", Reason: "driver is inactive"}
	}

	// 2. Vehicle must exist
	if _, err := s.refs.GetVehicle(ctx, req.VehicleID); err != nil {
		return nil, notFound("vehicle", req.VehicleID, err)
	}

	// 3. Transition
	oldStatus := booking.Status
	expected := booking.Version
	booking.Dispatch(req.DriverID, req.VehicleID, actor.UserID, req.ETAMinutes, s.now())

	if err := s.commit(ctx, booking, expected, mutation{
		operation: "dispatch",
		event:     models.EventBookingDispatched,
		oldStatus: &oldStatus,
		actor:     actor,
		note:      req.Note,
		audited:   true,
	}); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.BookingID,
		"driver_id":  req.DriverID,
		"vehicle_id": req.VehicleID,
		"old_status": oldStatus,
	}).Info("Booking dispatched")

	view := s.view(ctx, booking, nil)
	s.notifier.Notify(ctx, view, models.TemplateBookingDispatched)

	return view, nil
}

// ============================================================================
// UPDATE STATUS
// ============================================================================

// UpdateStatus moves the booking through the in-trip statuses. No transition
// table is enforced; completion and cancellation have their own operations.
func (s *BookingLifecycleService) UpdateStatus(
	ctx context.Context,
	ref string,
	req *models.UpdateStatusRequest,
	actor models.Actor,
) (*models.BookingView, error) {
	defer s.observe("update_status")()

	target, err := models.ParseBookingStatus(req.Status)
	if err != nil {
		return nil, domain.ValidationError{Field: "status", Msg: err.Error(), Err: err}
	}
	if target.IsTerminal() {
		return nil, domain.ValidationError{
			Field: "status",
			Msg:   fmt.Sprintf("use the %s operation to move a booking to %s", terminalOperation(target), target),
		}
	}

	booking, err := s.load(ctx, ref, req.Version)
	if err != nil {
		return nil, err
	}

	if booking.Status.IsTerminal() {
		return nil, domain.InvalidStateError{Operation: "change status of", Status: booking.Status.String()}
	}

	oldStatus := booking.Status
	expected := booking.Version
	booking.ApplyStatus(target, s.now())

	if err := s.commit(ctx, booking, expected, mutation{
		operation: "update_status",
		event:     models.EventStatusChanged,
		oldStatus: &oldStatus,
		actor:     actor,
		note:      req.Note,
		audited:   true,
	}); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.BookingID,
		"old_status": oldStatus,
		"new_status": target,
		"actor_type": actor.Type,
	}).Info("Booking status changed")

	view := s.view(ctx, booking, nil)
	switch target {
	case models.BookingStatusWaitingForCustomer:
		s.notifier.Notify(ctx, view, models.TemplateDriverArrived)
	case models.BookingStatusPassengerOnboard:
		s.notifier.Notify(ctx, view, models.TemplateTripStarted)
	}

	return view, nil
}

// ============================================================================
// COMPLETE
// ============================================================================

// Complete closes a trip with the caller-supplied distance and fare figures
func (s *BookingLifecycleService) Complete(
	ctx context.Context,
	ref string,
	req *models.CompleteBookingRequest,
	actor models.Actor,
) (*models.BookingView, error) {
	defer s.observe("complete")()

	booking, err := s.load(ctx, ref, req.Version)
	if err != nil {
		return nil, err
	}

	if !booking.CanComplete() {
		return nil, domain.InvalidStateError{Operation: "complete", Status: booking.Status.String()}
	}

	oldStatus := booking.Status
	expected := booking.Version
	booking.Complete(req, s.now())

	if err := s.commit(ctx, booking, expected, mutation{
		operation: "complete",
		event:     models.EventBookingCompleted,
		oldStatus: &oldStatus,
		actor:     actor,
		note:      req.Note,
		audited:   true,
	}); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.BookingID,
		"old_status": oldStatus,
		"total_fare": booking.TotalFare,
	}).Info("Booking completed")

	view := s.view(ctx, booking, nil)
	s.notifier.Notify(ctx, view, models.TemplateTripCompleted)

	return view, nil
}

// ============================================================================
// CANCEL
// ============================================================================

// Cancel records the single cancellation of a booking
func (s *BookingLifecycleService) Cancel(
	ctx context.Context,
	ref string,
	req *models.CancelBookingRequest,
	actor models.Actor,
) error {
	defer s.observe("cancel")()

	booking, err := s.loadFor(ctx, ref, req.Version, actor)
	if err != nil {
		return err
	}

	if !booking.CanBeCancelled() {
		return domain.InvalidStateError{Operation: "cancel", Status: booking.Status.String()}
	}

	now := s.now()
	cancellation := &models.BookingCancellation{
		BookingID:       booking.ID,
		Reason:          strings.TrimSpace(req.Reason),
		CancelledByType: actor.Type,
		CancelledByID:   optional(actor.ID),
		CancelledAt:     now,
	}
	if req.CancellationFee != nil {
		cancellation.CancellationFee = *req.CancellationFee
	}

	oldStatus := booking.Status
	expected := booking.Version
	booking.ApplyStatus(models.BookingStatusCancelled, now)

	if err := s.commit(ctx, booking, expected, mutation{
		operation:    "cancel",
		event:        models.EventBookingCancelled,
		oldStatus:    &oldStatus,
		actor:        actor,
		note:         &cancellation.Reason,
		audited:      true,
		cancellation: cancellation,
	}); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.BookingID,
		"old_status": oldStatus,
		"actor_type": actor.Type,
	}).Info("Booking cancelled")

	view := s.view(ctx, booking, cancellation)
	s.notifier.Notify(ctx, view, models.TemplateBookingCancelled)

	return nil
}

// ============================================================================
// QUERIES
// ============================================================================

// GetBooking returns the enriched booking by numeric id or booking id
func (s *BookingLifecycleService) GetBooking(ctx context.Context, ref string) (*models.BookingView, error) {
	booking, err := s.load(ctx, ref, nil)
	if err != nil {
		return nil, err
	}

	var cancellation *models.BookingCancellation
	if booking.Status == models.BookingStatusCancelled {
		cancellation, err = s.cancellations.GetByBookingID(ctx, booking.ID)
		if err != nil {
			s.logger.WithError(err).WithField("booking_id", booking.BookingID).Warn("Failed to load cancellation")
		}
	}

	return s.view(ctx, booking, cancellation), nil
}

// GetStatusHistory returns every transition of the booking, newest first
func (s *BookingLifecycleService) GetStatusHistory(ctx context.Context, ref string) ([]models.BookingStatusHistory, error) {
	booking, err := s.load(ctx, ref, nil)
	if err != nil {
		return nil, err
	}

	history, err := s.audit.History(ctx, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get status history: %w", err)
	}

	return history, nil
}

// ============================================================================
// HELPERS
// ============================================================================

// load resolves ref as a numeric id or a booking id and checks the caller's
// expected version when one was sent
func (s *BookingLifecycleService) load(ctx context.Context, ref string, expectedVersion *int64) (*models.Booking, error) {
	ref = strings.TrimSpace(ref)

	var (
		booking *models.Booking
		err     error
	)
	if id, parseErr := strconv.ParseInt(ref, 10, 64); parseErr == nil {
		booking, err = s.bookings.GetByID(ctx, id)
	} else {
		booking, err = s.bookings.GetByBookingID(ctx, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, domain.NotFoundError{Resource: "booking", ID: ref}
	}

	if expectedVersion != nil && *expectedVersion != booking.Version {
		return nil, domain.ConflictError{
			Resource: "booking",
			Msg:      fmt.Sprintf("version %d is stale, current version is %d", *expectedVersion, booking.Version),
		}
	}

	return booking, nil
}

// loadFor is load restricted to bookings the actor may change. Bookings of
// other customers are reported as missing.
func (s *BookingLifecycleService) loadFor(ctx context.Context, ref string, expectedVersion *int64, actor models.Actor) (*models.Booking, error) {
	booking, err := s.load(ctx, ref, expectedVersion)
	if err != nil {
		return nil, err
	}

	if !actor.CanAccess(booking) {
		s.logger.WithFields(logrus.Fields{
			"booking_id": booking.BookingID,
			"actor_id":   actor.ID,
		}).Warn("Customer tried to change another customer's booking")
		return nil, domain.NotFoundError{Resource: "booking", ID: strings.TrimSpace(ref)}
	}

	return booking, nil
}

// commit writes the booking and its history, cancellation and outbox rows in
// one transaction. expectedVersion 0 means insert.
func (s *BookingLifecycleService) commit(ctx context.Context, booking *models.Booking, expectedVersion int64, m mutation) error {
	err := s.bookings.InTx(ctx, func(tx sqlx.ExtContext) error {
		if expectedVersion == 0 {
			if err := s.bookings.Insert(ctx, tx, booking); err != nil {
				return err
			}
		} else if err := s.bookings.Update(ctx, tx, booking, expectedVersion); err != nil {
			return err
		}

		if m.cancellation != nil {
			if err := s.cancellations.Create(ctx, tx, m.cancellation); err != nil {
				return err
			}
		}

		if m.audited {
			if err := s.audit.Record(ctx, tx, booking, m.oldStatus, m.actor, m.note); err != nil {
				return err
			}
		}

		return s.outbox.Enqueue(ctx, tx, &models.BookingEvent{
			EventType:  m.event,
			BookingID:  booking.ID,
			BookingRef: booking.BookingID,
			OldStatus:  m.oldStatus,
			NewStatus:  booking.Status,
			ActorType:  m.actor.Type,
			ActorID:    m.actor.ID,
			Version:    booking.Version,
			OccurredAt: s.now(),
		})
	})

	switch {
	case err == nil:
		s.metrics.TransitionsTotal.WithLabelValues(m.operation, booking.Status.String()).Inc()
		return nil
	case errors.Is(err, database.ErrVersionConflict):
		return domain.ConflictError{Resource: "booking", Msg: "booking was modified concurrently", Err: err}
	case errors.Is(err, database.ErrAlreadyCancelled):
		return domain.InvalidStateError{Operation: "cancel", Status: models.BookingStatusCancelled.String()}
	case errors.Is(err, database.ErrDuplicateBookingID):
		return err
	default:
		return fmt.Errorf("failed to %s booking: %w", strings.ReplaceAll(m.operation, "_", " "), err)
	}
}

// withFreshBookingID assigns a new booking id and runs write, retrying with
// another id while storage reports a collision
func (s *BookingLifecycleService) withFreshBookingID(classTag string, booking *models.Booking, write func() error) error {
	var err error
	for attempt := 1; attempt <= s.config.IDRetryAttempts; attempt++ {
		booking.BookingID = s.identifier.GenerateBookingID(classTag)

		err = write()
		if !errors.Is(err, database.ErrDuplicateBookingID) {
			return err
		}

		s.logger.WithFields(logrus.Fields{
			"booking_id": booking.BookingID,
			"attempt":    attempt,
		}).Warn("Booking id collision, regenerating")
	}

	return domain.ConflictError{Resource: "booking", Msg: "could not allocate a unique booking id", Err: err}
}

func (s *BookingLifecycleService) view(ctx context.Context, booking *models.Booking, cancellation *models.BookingCancellation) *models.BookingView {
	view := s.enricher.Enrich(ctx, booking)
	view.Cancellation = cancellation
	return view
}

func (s *BookingLifecycleService) observe(operation string) func() {
	timer := prometheus.NewTimer(s.metrics.OperationDuration.WithLabelValues(operation))
	return func() { timer.ObserveDuration() }
}

func notFound(resource string, id int64, err error) error {
	return domain.NotFoundError{Resource: resource, ID: strconv.FormatInt(id, 10), Err: err}
}

func statusPtr(status models.BookingStatus) *models.BookingStatus {
	return &status
}

func terminalOperation(status models.BookingStatus) string {
	if status == models.BookingStatusCancelled {
		return "cancel"
	}
	return "complete"
}
