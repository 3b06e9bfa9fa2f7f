package models

// BookingView is the outward-facing booking with display fields resolved
// from the reference services. Display fields stay nil when a lookup fails.
type BookingView struct {
	Booking

	VehicleClassName *string `json:"vehicle_class_name,omitempty"`
	VehicleClassCode *string `json:"vehicle_class_code,omitempty"`
	DriverName       *string `json:"driver_name,omitempty"`
	DriverContact    *string `json:"driver_contact,omitempty"`
	VehicleRegNumber *string `json:"vehicle_registration_number,omitempty"`
	VehicleCode      *string `json:"vehicle_code,omitempty"`
	FareSchemeName   *string `json:"fare_scheme_name,omitempty"`
	FareSchemeCode   *string `json:"fare_scheme_code,omitempty"`
	CorporateName    *string `json:"corporate_name,omitempty"`
	CorporateCode    *string `json:"corporate_code,omitempty"`
	PromoCode        *string `json:"promo_code,omitempty"`
	BookedByName     *string `json:"booked_by_name,omitempty"`
	DispatchedByName *string `json:"dispatched_by_name,omitempty"`

	Cancellation *BookingCancellation `json:"cancellation,omitempty"`
}

// NewBookingView wraps a booking without any resolved display fields
func NewBookingView(b *Booking) *BookingView {
	return &BookingView{Booking: *b}
}
