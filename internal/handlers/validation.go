package handlers

import (
	"errors"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/smarttransit/taxi-booking-backend/internal/models"
	bookingvalidator "github.com/smarttransit/taxi-booking-backend/pkg/validator"
)

// RegisterValidators adds the booking binding tags to gin's validator.
// It must run before the router serves requests.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected binding validator engine")
	}

	statuses := make([]string, 0, len(models.AllBookingStatuses))
	for _, s := range models.AllBookingStatuses {
		statuses = append(statuses, s.String())
	}

	return bookingvalidator.Register(v, statuses)
}
