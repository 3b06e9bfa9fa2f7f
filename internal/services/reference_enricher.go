package services

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/taxi-booking-backend/internal/metrics"
	"github.com/smarttransit/taxi-booking-backend/internal/models"
	"github.com/smarttransit/taxi-booking-backend/pkg/refclient"
	"golang.org/x/sync/errgroup"
)

// ReferenceLookup reads the entities a booking points at from their owning services
type ReferenceLookup interface {
	GetVehicleClass(ctx context.Context, id int64) (*refclient.VehicleClass, error)
	GetDriver(ctx context.Context, id int64) (*refclient.Driver, error)
	GetVehicle(ctx context.Context, id int64) (*refclient.Vehicle, error)
	GetFareScheme(ctx context.Context, id int64) (*refclient.FareScheme, error)
	GetCorporate(ctx context.Context, id int64) (*refclient.Corporate, error)
	GetPromoCode(ctx context.Context, id int64) (*refclient.PromoCode, error)
	GetUser(ctx context.Context, id uuid.UUID) (*refclient.User, error)
}

// ReferenceEnricher resolves display names for a booking's references.
// A failed lookup only leaves its fields empty.
type ReferenceEnricher struct {
	refs    ReferenceLookup
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewReferenceEnricher creates a new enricher
func NewReferenceEnricher(refs ReferenceLookup, m *metrics.Metrics, logger *logrus.Logger) *ReferenceEnricher {
	return &ReferenceEnricher{
		refs:    refs,
		metrics: m,
		logger:  logger,
	}
}

// Enrich builds the booking view. Lookups run concurrently and every task
// reports success to the group, so one failure never cancels the others.
func (e *ReferenceEnricher) Enrich(ctx context.Context, booking *models.Booking) *models.BookingView {
	view := models.NewBookingView(booking)
	var g errgroup.Group

	if id := booking.VehicleClassID; id != nil {
		g.Go(func() error {
			class, err := e.refs.GetVehicleClass(ctx, *id)
			if e.failed("vehicle_class", strconv.FormatInt(*id, 10), booking, err) {
				return nil
			}
			view.VehicleClassName = optional(class.ClassName)
			view.VehicleClassCode = optional(class.ClassCode)
			return nil
		})
	}

	if id := booking.DriverID; id != nil {
		g.Go(func() error {
			driver, err := e.refs.GetDriver(ctx, *id)
			if e.failed("driver", strconv.FormatInt(*id, 10), booking, err) {
				return nil
			}
			view.DriverName = optional(driver.FullName())
			view.DriverContact = optional(driver.ContactNumber)
			return nil
		})
	}

	if id := booking.VehicleID; id != nil {
		g.Go(func() error {
			vehicle, err := e.refs.GetVehicle(ctx, *id)
			if e.failed("vehicle", strconv.FormatInt(*id, 10), booking, err) {
				return nil
			}
			view.VehicleRegNumber = optional(vehicle.RegistrationNumber)
			view.VehicleCode = optional(vehicle.VehicleCode)
			return nil
		})
	}

	if id := booking.FareSchemeID; id != nil {
		g.Go(func() error {
			fare, err := e.refs.GetFareScheme(ctx, *id)
			if e.failed("fare_scheme", strconv.FormatInt(*id, 10), booking, err) {
				return nil
			}
			view.FareSchemeName = optional(fare.FareName)
			view.FareSchemeCode = optional(fare.FareCode)
			return nil
		})
	}

	if id := booking.CorporateID; id != nil {
		g.Go(func() error {
			corporate, err := e.refs.GetCorporate(ctx, *id)
			if e.failed("corporate", strconv.FormatInt(*id, 10), booking, err) {
				return nil
			}
			view.CorporateName = optional(corporate.Name)
			view.CorporateCode = optional(corporate.Code)
			return nil
		})
	}

	if id := booking.PromoCodeID; id != nil {
		g.Go(func() error {
			promo, err := e.refs.GetPromoCode(ctx, *id)
			if e.failed("promo_code", strconv.FormatInt(*id, 10), booking, err) {
				return nil
			}
			view.PromoCode = optional(promo.Code)
			return nil
		})
	}

	if id := booking.BookedBy; id != nil {
		g.Go(func() error {
			user, err := e.refs.GetUser(ctx, *id)
			if e.failed("booked_by", id.String(), booking, err) {
				return nil
			}
			view.BookedByName = optional(user.FullName())
			return nil
		})
	}

	if id := booking.DispatchedBy; id != nil {
		g.Go(func() error {
			user, err := e.refs.GetUser(ctx, *id)
			if e.failed("dispatched_by", id.String(), booking, err) {
				return nil
			}
			view.DispatchedByName = optional(user.FullName())
			return nil
		})
	}

	_ = g.Wait()
	return view
}

// failed logs and counts a lookup error. A nil error is success.
func (e *ReferenceEnricher) failed(reference, id string, booking *models.Booking, err error) bool {
	if err == nil {
		return false
	}

	entry := e.logger.WithFields(logrus.Fields{
		"booking_id":   booking.BookingID,
		"reference":    reference,
		"reference_id": id,
	}).WithError(err)
	if errors.Is(err, refclient.ErrNotFound) {
		entry.Warn("Reference not found while enriching booking")
	} else {
		entry.Error("Reference lookup failed while enriching booking")
	}

	e.metrics.EnrichmentFailuresTotal.WithLabelValues(reference).Inc()
	return true
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
