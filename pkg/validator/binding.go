package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Tag names registered with the request validator
const (
	TagPhone         = "lk_phone"
	TagBookingStatus = "booking_status"
)

// Register adds the custom tags to v. statuses lists the accepted booking
// status names; matching is case-insensitive.
func Register(v *validator.Validate, statuses []string) error {
	phones := NewPhoneValidator()
	if err := v.RegisterValidation(TagPhone, func(fl validator.FieldLevel) bool {
		return phones.IsValid(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("failed to register %s: %w", TagPhone, err)
	}

	allowed := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		allowed[strings.ToUpper(s)] = struct{}{}
	}
	if err := v.RegisterValidation(TagBookingStatus, func(fl validator.FieldLevel) bool {
		_, ok := allowed[strings.ToUpper(strings.TrimSpace(fl.Field().String()))]
		return ok
	}); err != nil {
		return fmt.Errorf("failed to register %s: %w", TagBookingStatus, err)
	}

	return nil
}
