package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smarttransit/taxi-booking-backend/internal/models"
	"github.com/smarttransit/taxi-booking-backend/pkg/refclient"
	"github.com/stretchr/testify/assert"
)

func enrichmentFixture() (*fakeRefs, *models.Booking) {
	refs := newFakeRefs()
	staff := uuid.New()

	refs.classes[2] = &refclient.VehicleClass{ID: 2, ClassName: "Mini Car", ClassCode: "MINI"}
	refs.drivers[1] = &refclient.Driver{ID: 1, FirstName: "Nimal", LastName: "Perera", ContactNumber: "0771234567", IsActive: true}
	refs.vehicles[100] = &refclient.Vehicle{ID: 100, RegistrationNumber: "WP CAB-1234", VehicleCode: "V100"}
	refs.fares[5] = &refclient.FareScheme{ID: 5, FareName: "Standard", FareCode: "STD"}
	refs.corporates[10] = &refclient.Corporate{ID: 10, Name: "Ceylon Tea Exports", Code: "CTE"}
	refs.promos[7] = &refclient.PromoCode{ID: 7, Code: "AVURUDU"}
	refs.users[staff] = &refclient.User{ID: staff, FirstName: "Dilani", LastName: "Fernando"}

	booking := &models.Booking{
		ID:             42,
		BookingID:      "BK-MINI-1767225600000A1B2",
		Status:         models.BookingStatusDispatched,
		VehicleClassID: int64Ptr(2),
		DriverID:       int64Ptr(1),
		VehicleID:      int64Ptr(100),
		FareSchemeID:   int64Ptr(5),
		CorporateID:    int64Ptr(10),
		PromoCodeID:    int64Ptr(7),
		BookedBy:       &staff,
		DispatchedBy:   &staff,
	}

	return refs, booking
}

func TestReferenceEnricher_Enrich(t *testing.T) {
	ctx := context.Background()

	t.Run("All references resolve", func(t *testing.T) {
		refs, booking := enrichmentFixture()
		enricher := NewReferenceEnricher(refs, testMetrics(), testLogger())

		view := enricher.Enrich(ctx, booking)

		assert.Equal(t, booking.BookingID, view.BookingID)
		assert.Equal(t, "Mini Car", *view.VehicleClassName)
		assert.Equal(t, "MINI", *view.VehicleClassCode)
		assert.Equal(t, "Nimal Perera", *view.DriverName)
		assert.Equal(t, "0771234567", *view.DriverContact)
		assert.Equal(t, "WP CAB-1234", *view.VehicleRegNumber)
		assert.Equal(t, "Standard", *view.FareSchemeName)
		assert.Equal(t, "Ceylon Tea Exports", *view.CorporateName)
		assert.Equal(t, "AVURUDU", *view.PromoCode)
		assert.Equal(t, "Dilani Fernando", *view.BookedByName)
		assert.Equal(t, "Dilani Fernando", *view.DispatchedByName)
	})

	t.Run("Failed lookup leaves only its fields empty", func(t *testing.T) {
		refs, booking := enrichmentFixture()
		refs.failing["driver"] = true
		m := testMetrics()
		enricher := NewReferenceEnricher(refs, m, testLogger())

		view := enricher.Enrich(ctx, booking)

		assert.Nil(t, view.DriverName)
		assert.Nil(t, view.DriverContact)
		assert.Equal(t, "WP CAB-1234", *view.VehicleRegNumber)
		assert.Equal(t, "Mini Car", *view.VehicleClassName)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrichmentFailuresTotal.WithLabelValues("driver")))
	})

	t.Run("Missing reference is not an error", func(t *testing.T) {
		refs, booking := enrichmentFixture()
		booking.PromoCodeID = int64Ptr(999)
		m := testMetrics()
		enricher := NewReferenceEnricher(refs, m, testLogger())

		view := enricher.Enrich(ctx, booking)

		assert.Nil(t, view.PromoCode)
		assert.Equal(t, "Ceylon Tea Exports", *view.CorporateName)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrichmentFailuresTotal.WithLabelValues("promo_code")))
	})

	t.Run("Every lookup down", func(t *testing.T) {
		refs, booking := enrichmentFixture()
		for _, resource := range []string{"vehicle_class", "driver", "vehicle", "fare_scheme", "corporate", "promo_code", "user"} {
			refs.failing[resource] = true
		}
		enricher := NewReferenceEnricher(refs, testMetrics(), testLogger())

		view := enricher.Enrich(ctx, booking)

		assert.Equal(t, *booking, view.Booking)
		assert.Nil(t, view.VehicleClassName)
		assert.Nil(t, view.CorporateName)
		assert.Nil(t, view.BookedByName)
	})

	t.Run("No references", func(t *testing.T) {
		enricher := NewReferenceEnricher(newFakeRefs(), testMetrics(), testLogger())
		view := enricher.Enrich(ctx, &models.Booking{BookingID: "BK-GEN-1ABCD"})

		assert.Equal(t, "BK-GEN-1ABCD", view.BookingID)
		assert.Nil(t, view.VehicleClassName)
	})
}
