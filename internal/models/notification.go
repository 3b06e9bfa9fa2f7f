package models

// NotificationTemplate codes sent on lifecycle events
const (
	TemplateBookingCreated    = "BOOKING_CREATED"
	TemplateBookingDispatched = "BOOKING_DISPATCHED"
	TemplateDriverArrived     = "DRIVER_ARRIVED"
	TemplateTripStarted       = "TRIP_STARTED"
	TemplateTripCompleted     = "TRIP_COMPLETED"
	TemplateBookingCancelled  = "BOOKING_CANCELLED"
)

// EmailTemplate is a stored subject/body pair rendered with the
// notification variables
type EmailTemplate struct {
	Code     string `json:"code" db:"code"`
	Subject  string `json:"subject" db:"subject"`
	Body     string `json:"body" db:"body"`
	IsHTML   bool   `json:"is_html" db:"is_html"`
	IsActive bool   `json:"is_active" db:"is_active"`
}
